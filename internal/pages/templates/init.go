// Package templates registers the built-in page templates.
// Import it for side effects wherever templates must be available.
package templates
