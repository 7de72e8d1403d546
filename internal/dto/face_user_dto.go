package dto

import "time"

type FaceUserResponse struct {
	Id         string    `json:"id"`
	Name       string    `json:"name"`
	HasName    bool      `json:"hasName"`
	Temporary  bool      `json:"temporary"`
	VisitCount int       `json:"visitCount"`
	Samples    int       `json:"samples"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeen   time.Time `json:"lastSeen"`
}

type RenameFaceUserRequest struct {
	Name string `json:"name" validate:"required,max=64"`
}
