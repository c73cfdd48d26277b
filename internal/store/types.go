package store

import "time"

// Extraction is one recorded snapshot extraction.
type Extraction struct {
	Token     string
	DeviceID  string
	Package   string
	Database  string
	LocalPath string
	Pathway   string
	SizeBytes int64
	CreatedAt time.Time
	Files     []ExtractionFile
}

// ExtractionFile is the transfer record of one file of an extraction.
type ExtractionFile struct {
	Name      string
	Technique string
	OK        bool
	SizeBytes int64
	Detail    string
}
