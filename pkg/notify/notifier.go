package notify

import (
	"context"
	"time"
)

type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Notification is a platform (OS level) notification.
type Notification struct {
	Title     string        `json:"title"`
	Body      string        `json:"body"`
	Icon      string        `json:"icon"`
	Tag       string        `json:"tag"`
	AutoClose time.Duration `json:"auto_close"`
}

// Notifier shows platform notifications. Show is only called once
// permission is granted.
type Notifier interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Show(n Notification) error
}

// NopNotifier never gets permission.
type NopNotifier struct{}

func (NopNotifier) Permission() Permission { return PermissionDenied }

func (NopNotifier) RequestPermission(context.Context) (Permission, error) {
	return PermissionDenied, nil
}

func (NopNotifier) Show(Notification) error { return nil }
