package models

import (
	"time"
)

// SessionState tracks where an edit session is in its lifecycle.
type SessionState string

const (
	SessionLoading    SessionState = "loading"
	SessionError      SessionState = "error"
	SessionReady      SessionState = "ready"
	SessionSubmitting SessionState = "submitting"
	SessionSuccess    SessionState = "success"
	SessionClosed     SessionState = "closed"
)

// ImageKind discriminates the two entry variants: an image already hosted on
// the marketplace, or a freshly selected file staged locally.
type ImageKind string

const (
	ImageKindRemote ImageKind = "remote"
	ImageKindLocal  ImageKind = "local"
)

// ImageStatus is the upload lifecycle of a local entry. Remote entries are
// always "uploaded".
type ImageStatus string

const (
	ImageStatusPending   ImageStatus = "pending"
	ImageStatusUploading ImageStatus = "uploading"
	ImageStatusUploaded  ImageStatus = "uploaded"
	ImageStatusFailed    ImageStatus = "failed"
)

// ImageEntry is one image associated with the session. Position defines both
// display and submission order; the entry at position 0 is the main image.
type ImageEntry struct {
	ID          string      `json:"id" bson:"id"`
	Kind        ImageKind   `json:"kind" bson:"kind"`
	URL         string      `json:"url,omitempty" bson:"url,omitempty"`
	PreviewURL  string      `json:"previewUrl,omitempty" bson:"preview_url,omitempty"`
	StagingPath string      `json:"stagingPath,omitempty" bson:"staging_path,omitempty"`
	Filename    string      `json:"filename,omitempty" bson:"filename,omitempty"`
	SizeBytes   int64       `json:"sizeBytes,omitempty" bson:"size_bytes,omitempty"`
	Position    int         `json:"position" bson:"position"`
	Status      ImageStatus `json:"status" bson:"status"`
}

// IsMain reports whether the entry is the primary display image.
func (e *ImageEntry) IsMain() bool {
	return e.Position == 0
}

// FormFields holds the editable field values. Everything is kept as entered;
// price and negotiable are coerced only when the update request is built.
type FormFields struct {
	Title         string `json:"title" bson:"title"`
	Description   string `json:"description" bson:"description"`
	Location      string `json:"location" bson:"location"`
	Price         string `json:"price" bson:"price"`
	Negotiable    string `json:"negotiable" bson:"negotiable"`
	ContactNumber string `json:"contactNumber" bson:"contact_number"`
}

// EditSession is the JSON view of one open editor dialog.
type EditSession struct {
	ID        string       `json:"id"`
	ListingID string       `json:"listingId"`
	State     SessionState `json:"state"`
	Fields    FormFields   `json:"fields"`
	Images    []ImageEntry `json:"images"`
	LastError string       `json:"lastError,omitempty"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// DraftSnapshot is what survives a restart: field values and image metadata.
// The submission request itself is never persisted.
type DraftSnapshot struct {
	SessionID string       `bson:"_id" json:"session_id"`
	ListingID string       `bson:"listing_id" json:"listing_id"`
	Fields    FormFields   `bson:"fields" json:"fields"`
	Images    []ImageEntry `bson:"images" json:"images"`
	UpdatedAt time.Time    `bson:"updated_at" json:"updated_at"`
}

// OpenSessionRequest starts an edit session for one listing.
type OpenSessionRequest struct {
	ListingID string `json:"listingId"`
}

func (r *OpenSessionRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.ListingID == "" {
		errors["listingId"] = "Listing ID is required"
	}

	return errors
}

// UpdateFieldRequest mutates a single form field.
type UpdateFieldRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func (r *UpdateFieldRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Field == "" {
		errors["field"] = "Field name is required"
	}

	return errors
}

// ReorderImageRequest moves an image entry to a new position.
type ReorderImageRequest struct {
	Position int `json:"position"`
}

func (r *ReorderImageRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Position < 0 {
		errors["position"] = "Position cannot be negative"
	}

	return errors
}
