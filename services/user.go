package services

import (
	"context"

	"github.com/parley-im/parley-go/chat"
)

// RelationFields selects which relation attributes to change; nil pointers
// leave the server value alone.
type RelationFields struct {
	Remark *string `json:"remark,omitempty"`
	Star   *bool   `json:"star,omitempty"`
	Block  *bool   `json:"block,omitempty"`
}

// GetProfile fetches a user's public profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (*chat.User, error) {
	var res chat.User
	if err := s.post(ctx, "/profile/"+userID, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateRelation changes how the caller relates to userID (remark, star,
// block).
func (s *Service) UpdateRelation(ctx context.Context, userID string, fields *RelationFields) error {
	return s.post(ctx, "/relation/"+userID, fields, nil)
}

// AttachmentUploadURL is where the media package streams multipart uploads.
func (s *Service) AttachmentUploadURL() string {
	return s.URL("/attachment/upload")
}
