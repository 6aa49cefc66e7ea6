// Package validate checks a picked file before any network call is made.
package validate

import (
	"fmt"
	"math"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// ErrorType classifies a rejected file.
type ErrorType string

const (
	ErrEmptyFile    ErrorType = "EMPTY_FILE"
	ErrSizeExceeded ErrorType = "SIZE_EXCEEDED"
	ErrInvalidType  ErrorType = "INVALID_TYPE"
)

const (
	DefaultMaxSize   int64 = 10 * 1024 * 1024
	WarningThreshold int64 = 8 * 1024 * 1024
)

var AllowedExtensions = []string{".pdf"}

// SizeInfo describes a file size against the limit.
type SizeInfo struct {
	SizeBytes        int64
	SizeMB           float64
	MaxSizeMB        float64
	Valid            bool
	FormattedSize    string
	FormattedMaxSize string
}

// Error is returned for files that must not be uploaded. Info is nil for
// INVALID_TYPE.
type Error struct {
	Type    ErrorType
	Message string
	Info    *SizeInfo
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Limits summarises what the validator accepts.
type Limits struct {
	MaxSizeBytes      int64
	MaxSizeMB         float64
	FormattedMaxSize  string
	AllowedExtensions []string
}

// PreUploadResult is the outcome of PreUpload. Err is set when the file is
// rejected; Warning when it is accepted but large.
type PreUploadResult struct {
	Info    SizeInfo
	Warning string
	Err     error
}

// CanUpload reports whether the file passed validation.
func (r PreUploadResult) CanUpload() bool { return r.Err == nil }

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatFileSize renders bytes with one decimal, trailing zero dropped:
// 0 -> "0 B", 1536 -> "1.5 KB", 10485760 -> "10 MB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	v, i := float64(bytes), 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	v = math.Round(v*10) / 10
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}

type Validator struct {
	maxSize int64
}

// New returns a validator with the given ceiling; maxSize <= 0 means 10MB.
func New(maxSize int64) *Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Validator{maxSize: maxSize}
}

func toMB(b int64) float64 {
	return math.Round(float64(b)/(1024*1024)*100) / 100
}

// SizeInfo computes the size summary for sizeBytes.
func (v *Validator) SizeInfo(sizeBytes int64) SizeInfo {
	return SizeInfo{
		SizeBytes:        sizeBytes,
		SizeMB:           toMB(sizeBytes),
		MaxSizeMB:        float64(v.maxSize) / (1024 * 1024),
		Valid:            sizeBytes <= v.maxSize,
		FormattedSize:    FormatFileSize(sizeBytes),
		FormattedMaxSize: FormatFileSize(v.maxSize),
	}
}

// ValidateSize rejects empty and oversized files.
func (v *Validator) ValidateSize(sizeBytes int64) (SizeInfo, error) {
	info := v.SizeInfo(sizeBytes)
	if sizeBytes <= 0 {
		return info, &Error{Type: ErrEmptyFile, Message: "The file is empty.", Info: &info}
	}
	if sizeBytes > v.maxSize {
		return info, &Error{
			Type:    ErrSizeExceeded,
			Message: fmt.Sprintf("The file exceeds the size limit.\nUploaded: %s / Max: %s", info.FormattedSize, info.FormattedMaxSize),
			Info:    &info,
		}
	}
	return info, nil
}

// ValidateExtension rejects files that are not PDFs.
func (v *Validator) ValidateExtension(name string) error {
	if name == "" {
		return &Error{Type: ErrInvalidType, Message: "No file name was provided."}
	}
	ext := strings.ToLower(filepath.Ext(name))
	if !slices.Contains(AllowedExtensions, ext) {
		return &Error{
			Type:    ErrInvalidType,
			Message: fmt.Sprintf("Unsupported file type.\nOnly PDF files can be uploaded. (current: %q)", ext),
		}
	}
	return nil
}

// ValidateFile checks the extension first, then the size.
func (v *Validator) ValidateFile(name string, sizeBytes int64) (SizeInfo, error) {
	if err := v.ValidateExtension(name); err != nil {
		return v.SizeInfo(sizeBytes), err
	}
	return v.ValidateSize(sizeBytes)
}

// PreUpload validates the file and adds a warning for large files.
func (v *Validator) PreUpload(name string, sizeBytes int64) PreUploadResult {
	info, err := v.ValidateFile(name, sizeBytes)
	if err != nil {
		return PreUploadResult{Info: info, Err: err}
	}
	res := PreUploadResult{Info: info}
	if sizeBytes > WarningThreshold {
		res.Warning = fmt.Sprintf("Large file (%s). The upload may take a while.", info.FormattedSize)
	}
	return res
}

func (v *Validator) Limits() Limits {
	return Limits{
		MaxSizeBytes:      v.maxSize,
		MaxSizeMB:         float64(v.maxSize) / (1024 * 1024),
		FormattedMaxSize:  FormatFileSize(v.maxSize),
		AllowedExtensions: slices.Clone(AllowedExtensions),
	}
}
