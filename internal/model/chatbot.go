package model

import (
	"time"
)

// ChatbotMode selects the dispatch strategy for a chatbot.
type ChatbotMode string

const (
	// ModeFlow always runs the scripted flow.
	ModeFlow ChatbotMode = "FLOW"
	// ModeAI always answers with the AI collaborator.
	ModeAI ChatbotMode = "AI"
	// ModeHybrid prefers an in-progress or keyword-triggered flow and
	// falls back to AI.
	ModeHybrid ChatbotMode = "HYBRID"
)

// BusinessHours configures when AI replies are allowed.
type BusinessHours struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"`

	// Open/Close are "HH:MM" local times applied to every weekday
	// listed in Days (time.Weekday values). An empty Days slice means
	// every day.
	Open  string         `json:"open,omitempty"`
	Close string         `json:"close,omitempty"`
	Days  []time.Weekday `json:"days,omitempty"`

	// OutOfHoursMessage is sent instead of calling AI outside hours.
	OutOfHoursMessage string `json:"out_of_hours_message,omitempty"`
}

// Chatbot is the automation configuration for a tenant. The flow graph
// is immutable per chatbot version.
type Chatbot struct {
	ID       string      `json:"id"`
	TenantID string      `json:"tenant_id"`
	Name     string      `json:"name"`
	Mode     ChatbotMode `json:"mode"`
	Active   bool        `json:"active"`

	// Default marks the chatbot the dispatcher resolves to when a
	// conversation carries no explicit override.
	Default bool `json:"default"`

	TriggerKeywords []string `json:"trigger_keywords,omitempty"`
	HandoffKeywords []string `json:"handoff_keywords,omitempty"`
	HandoffMessage  string   `json:"handoff_message,omitempty"`

	// AI configuration.
	Persona       string  `json:"persona,omitempty"`
	KnowledgeBase string  `json:"knowledge_base,omitempty"`
	AIProvider    string  `json:"ai_provider,omitempty"`
	AIModel       string  `json:"ai_model,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	MaxTokens     int     `json:"max_tokens,omitempty"`
	HistoryLimit  int     `json:"history_limit,omitempty"`

	BusinessHours *BusinessHours `json:"business_hours,omitempty"`

	Flow *FlowGraph `json:"flow,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
