// Package models defines the wire and persisted data types shared by the
// pdfxcel client packages.
package models
