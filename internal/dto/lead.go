package dto

import "lead-routing-backend/internal/model"

type Lead struct {
	LeadID             string   `json:"leadId"`
	Name               string   `json:"name"`
	Phone              string   `json:"phone"`
	Pipeline           string   `json:"pipeline"`
	Tags               []string `json:"tags,omitempty"`
	LastMessagePreview string   `json:"lastMessagePreview,omitempty"`
	LastMessageAt      string   `json:"lastMessageAt,omitempty"`
	CreatedAt          string   `json:"createdAt"`
	UpdatedAt          string   `json:"updatedAt"`
}

type CreateLeadRequest struct {
	Name     string   `json:"name"`
	Phone    string   `json:"phone"`
	Pipeline string   `json:"pipeline,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

type UpdateLeadRequest struct {
	Name     *string   `json:"name,omitempty"`
	Pipeline *string   `json:"pipeline,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
}

type ListLeadsResponse struct {
	Leads []Lead `json:"leads"`
}

func FromLead(item model.LeadItem) Lead {
	return Lead{
		LeadID:             item.LeadID,
		Name:               item.Name,
		Phone:              item.Phone,
		Pipeline:           item.Pipeline,
		Tags:               append([]string(nil), item.Tags...),
		LastMessagePreview: item.LastMessagePreview,
		LastMessageAt:      item.LastMessageAt,
		CreatedAt:          item.CreatedAt,
		UpdatedAt:          item.UpdatedAt,
	}
}
