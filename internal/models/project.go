package models

import "time"

// DefaultFileName файл, который создается вместе с новым проектом
const DefaultFileName = "main.tex"

// Project метаданные проекта: упорядоченный список файлов и соавторы.
// Проекты не удаляются.
type Project struct {
	CreatedAt     time.Time     `json:"created_at"`
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	OwnerID       string        `json:"owner_id"`
	OwnerName     string        `json:"owner_name"`
	Files         []string      `json:"files"`
	Collaborators []Participant `json:"collaborators"`
}

// HasFile проверяет наличие файла в проекте
func (p *Project) HasFile(fileName string) bool {
	fileName = NormalizeFileName(fileName)
	for _, f := range p.Files {
		if f == fileName {
			return true
		}
	}
	return false
}

// IsMember проверяет, является ли участник владельцем или соавтором проекта
func (p *Project) IsMember(participantID string) bool {
	if p.OwnerID == participantID {
		return true
	}
	for _, c := range p.Collaborators {
		if c.ID == participantID {
			return true
		}
	}
	return false
}
