package model

import (
	"time"
)

// Stage is the lifecycle stage of a contact.
type Stage string

const (
	StageNew       Stage = "NEW"
	StageContacted Stage = "CONTACTED"
	StageQualified Stage = "QUALIFIED"
	StageCustomer  Stage = "CUSTOMER"
	StageLost      Stage = "LOST"
)

// Contact is the identity anchor for a remote party on one channel.
// Contacts are unique per (ExternalID, ChannelID).
type Contact struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`

	// ExternalID is the channel-scoped address of the contact: a phone
	// number for WhatsApp channels, a platform user id for Instagram.
	ExternalID string `json:"external_id"`

	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`

	Tags    []string `json:"tags,omitempty"`
	Stage   Stage    `json:"stage"`
	OptedIn bool     `json:"opted_in"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasTag reports whether the contact carries the given tag.
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AddTag appends a tag if not already present.
func (c *Contact) AddTag(tag string) {
	if !c.HasTag(tag) {
		c.Tags = append(c.Tags, tag)
	}
}

// RemoveTag removes a tag if present.
func (c *Contact) RemoveTag(tag string) {
	for i, t := range c.Tags {
		if t == tag {
			c.Tags = append(c.Tags[:i], c.Tags[i+1:]...)
			return
		}
	}
}
