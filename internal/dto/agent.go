package dto

import "lead-routing-backend/internal/model"

type Agent struct {
	AgentID            string `json:"agentId"`
	Name               string `json:"name"`
	Email              string `json:"email"`
	PipelineType       string `json:"pipelineType"`
	IsOnline           bool   `json:"isOnline"`
	IsActive           bool   `json:"isActive"`
	CurrentChatCount   int    `json:"currentChatCount"`
	MaxConcurrentChats int    `json:"maxConcurrentChats"`
	CreatedAt          string `json:"createdAt"`
}

type CreateAgentRequest struct {
	Name               string `json:"name"`
	Email              string `json:"email"`
	Password           string `json:"password"`
	PipelineType       string `json:"pipelineType"`
	MaxConcurrentChats int    `json:"maxConcurrentChats"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignInResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
	Agent        Agent  `json:"agent"`
}

type ListAgentsResponse struct {
	Agents []Agent `json:"agents"`
}

func FromAgent(item model.AgentItem) Agent {
	return Agent{
		AgentID:            item.AgentID,
		Name:               item.Name,
		Email:              item.Email,
		PipelineType:       item.PipelineType,
		IsOnline:           item.IsOnline,
		IsActive:           item.IsActive,
		CurrentChatCount:   item.CurrentChatCount,
		MaxConcurrentChats: item.MaxConcurrentChats,
		CreatedAt:          item.CreatedAt,
	}
}
