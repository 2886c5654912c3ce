package services

import (
	"context"

	"github.com/parley-im/parley-go/chat"
)

// CreateTopicForm describes a new multi-party topic.
type CreateTopicForm struct {
	Name    string   `json:"name,omitempty"`
	Icon    string   `json:"icon,omitempty"`
	Members []string `json:"members,omitempty"`
	Private bool     `json:"private,omitempty"`
}

// TopicMemberListResult is one page of a topic's membership.
type TopicMemberListResult struct {
	Items     []*chat.TopicMember `json:"items,omitempty"`
	UpdatedAt string              `json:"updatedAt,omitempty"`
	HasMore   bool                `json:"hasMore,omitempty"`
	Total     int64               `json:"total,omitempty"`
}

// CreateTopic creates a multi-party topic and returns the caller's
// conversation for it.
func (s *Service) CreateTopic(ctx context.Context, form *CreateTopicForm) (*chat.Conversation, error) {
	var res chat.Conversation
	if err := s.post(ctx, "/topic/create", form, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetTopic fetches the server-side topic description.
func (s *Service) GetTopic(ctx context.Context, topicID string) (*chat.Topic, error) {
	var res chat.Topic
	if err := s.post(ctx, "/topic/info/"+topicID, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ListTopicMembers pages through the topic membership.
func (s *Service) ListTopicMembers(ctx context.Context, topicID, updatedAt string, limit int) (*TopicMemberListResult, error) {
	body := struct {
		UpdatedAt string `json:"updatedAt,omitempty"`
		Limit     int    `json:"limit,omitempty"`
	}{UpdatedAt: updatedAt, Limit: limit}

	var res TopicMemberListResult
	if err := s.post(ctx, "/topic/members/"+topicID, &body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// KnockTopic asks to join a private topic.
func (s *Service) KnockTopic(ctx context.Context, topicID, message string) error {
	body := struct {
		Message string `json:"message,omitempty"`
	}{Message: message}
	return s.post(ctx, "/topic/knock/"+topicID, &body, nil)
}

// ListKnocks lists the pending join requests. Admin only.
func (s *Service) ListKnocks(ctx context.Context, topicID string) ([]*chat.TopicKnock, error) {
	var res struct {
		Items []*chat.TopicKnock `json:"items,omitempty"`
	}
	if err := s.post(ctx, "/topic/admin/knock/list/"+topicID, nil, &res); err != nil {
		return nil, err
	}
	return res.Items, nil
}

// AcceptKnock admits a knocking user. Admin only.
func (s *Service) AcceptKnock(ctx context.Context, topicID, userID string) error {
	return s.post(ctx, "/topic/admin/knock/accept/"+topicID, userForm(userID), nil)
}

// RejectKnock declines a knocking user. Admin only.
func (s *Service) RejectKnock(ctx context.Context, topicID, userID string) error {
	return s.post(ctx, "/topic/admin/knock/reject/"+topicID, userForm(userID), nil)
}

// AddAdmin grants admin rights. Owner only.
func (s *Service) AddAdmin(ctx context.Context, topicID, userID string) error {
	return s.post(ctx, "/topic/admin/add/"+topicID, userForm(userID), nil)
}

// RemoveAdmin revokes admin rights. Owner only.
func (s *Service) RemoveAdmin(ctx context.Context, topicID, userID string) error {
	return s.post(ctx, "/topic/admin/remove/"+topicID, userForm(userID), nil)
}

// RemoveTopicMember kicks a member out of the topic. Admin only.
func (s *Service) RemoveTopicMember(ctx context.Context, topicID, userID string) error {
	return s.post(ctx, "/topic/admin/kickout/"+topicID, userForm(userID), nil)
}

// SilentTopic mutes the whole topic for duration ("" lifts the silence).
func (s *Service) SilentTopic(ctx context.Context, topicID, duration string) error {
	body := struct {
		Duration string `json:"duration,omitempty"`
	}{Duration: duration}
	return s.post(ctx, "/topic/admin/silent/"+topicID, &body, nil)
}

// SilentTopicMember mutes one member for duration ("" lifts the silence).
func (s *Service) SilentTopicMember(ctx context.Context, topicID, userID, duration string) error {
	body := struct {
		UserID   string `json:"userId"`
		Duration string `json:"duration,omitempty"`
	}{UserID: userID, Duration: duration}
	return s.post(ctx, "/topic/admin/silent_member/"+topicID, &body, nil)
}

// QuitTopic leaves the topic.
func (s *Service) QuitTopic(ctx context.Context, topicID string) error {
	return s.post(ctx, "/topic/quit/"+topicID, nil, nil)
}

// DismissTopic deletes the topic for everyone. Owner only.
func (s *Service) DismissTopic(ctx context.Context, topicID string) error {
	return s.post(ctx, "/topic/dismiss/"+topicID, nil, nil)
}

func userForm(userID string) any {
	return &struct {
		UserID string `json:"userId"`
	}{UserID: userID}
}
