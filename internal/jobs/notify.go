package jobs

import "github.com/gen2brain/beeep"

// Notifier delivers the single terminal alert for a finished job.
type Notifier interface {
	Notify(title, message string) error
}

// DesktopNotifier shows alerts through the platform notification center.
type DesktopNotifier struct{}

// NewDesktopNotifier creates the production notifier.
func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{}
}

// Notify displays one desktop notification.
func (n *DesktopNotifier) Notify(title, message string) error {
	return beeep.Notify(title, message, "")
}
