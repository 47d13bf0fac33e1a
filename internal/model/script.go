// Package model defines the data structures shared across the application.
package model

import "time"

// ScriptStatus is the lifecycle state of a script.
// Transitions are one-directional: active -> removed. Removed scripts are
// invisible to every read path but their row is retained (soft delete).
type ScriptStatus string

const (
	StatusActive  ScriptStatus = "active"
	StatusRemoved ScriptStatus = "removed"
)

// Script represents an uploaded script.
//
// UploaderName and UploaderAvatar are denormalized snapshots of the uploading
// user taken at upload time — they are not re-resolved if the user later
// changes their profile.
//
// Likes must always equal the number of entries in LikedBy. Both are mutated
// only by the like operation, which the repository performs as a single
// conditional update. Views only ever grows.
//
// LikedBy holds external-provider (Roblox) user IDs, since likes are keyed by
// the liker's provider identity. It is populated on single-item reads and on
// like responses; list-shaped reads omit it.
type Script struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	Code           string       `json:"code"`
	UploaderID     string       `json:"uploaderId"`
	UploaderName   string       `json:"uploaderName"`
	UploaderAvatar string       `json:"uploaderAvatar"`
	Anonymous      bool         `json:"anonymous"`
	GameName       string       `json:"gameName"`
	Views          int64        `json:"views"`
	Likes          int64        `json:"likes"`
	LikedBy        []int64      `json:"likedBy,omitempty"`
	Reports        int64        `json:"reports"`
	Status         ScriptStatus `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}
