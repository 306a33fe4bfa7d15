// Package linkpreview defines the core types shared across the link preview
// service: the persisted Link record, its thumbnail attachment, the thumbnail
// job envelope, and the collaborator interfaces implemented by storage,
// queue, and download adapters.
package linkpreview
