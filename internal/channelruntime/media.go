package channelruntime

import (
	"fmt"
	"strings"

	"github.com/njfio/taubot/ingest"
)

// Reason codes for media understanding.
const (
	ReasonMediaImageDescribed        = "media_image_described"
	ReasonMediaAudioTranscribed      = "media_audio_transcribed"
	ReasonMediaDocumentSummarized    = "media_document_summarized"
	ReasonMediaUnsupportedType       = "media_unsupported_attachment_type"
	ReasonMediaAttachmentLimitHit    = "media_attachment_limit_exceeded"
)

const maxMediaSummaryChars = 240

type MediaResult struct {
	AttachmentID string
	ReasonCode   string
	Summary      string
}

// UnderstandAttachments walks an event's attachments up to the cap. Each
// supported attachment yields a bounded summary for the conversation
// context; unsupported types and overflow attachments are skipped with
// their own reason codes.
func UnderstandAttachments(attachments []ingest.Attachment, maxPerEvent int) []MediaResult {
	if maxPerEvent <= 0 {
		maxPerEvent = 4
	}
	results := make([]MediaResult, 0, len(attachments))
	for i, att := range attachments {
		if i >= maxPerEvent {
			results = append(results, MediaResult{
				AttachmentID: att.AttachmentID,
				ReasonCode:   ReasonMediaAttachmentLimitHit,
			})
			continue
		}
		kind := mediaKind(att.ContentType)
		if kind == "" {
			results = append(results, MediaResult{
				AttachmentID: att.AttachmentID,
				ReasonCode:   ReasonMediaUnsupportedType,
			})
			continue
		}
		results = append(results, MediaResult{
			AttachmentID: att.AttachmentID,
			ReasonCode:   reasonForKind(kind),
			Summary:      boundSummary(describeAttachment(kind, att)),
		})
	}
	return results
}

func mediaKind(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return "image"
	case strings.HasPrefix(ct, "audio/"):
		return "audio"
	case ct == "application/pdf" || strings.HasPrefix(ct, "text/"):
		return "document"
	default:
		return ""
	}
}

func reasonForKind(kind string) string {
	switch kind {
	case "image":
		return ReasonMediaImageDescribed
	case "audio":
		return ReasonMediaAudioTranscribed
	default:
		return ReasonMediaDocumentSummarized
	}
}

func describeAttachment(kind string, att ingest.Attachment) string {
	name := strings.TrimSpace(att.FileName)
	if name == "" {
		name = strings.TrimSpace(att.AttachmentID)
	}
	if att.SizeBytes > 0 {
		return fmt.Sprintf("%s attachment %s (%s, %d bytes)", kind, name, att.ContentType, att.SizeBytes)
	}
	return fmt.Sprintf("%s attachment %s (%s)", kind, name, att.ContentType)
}

func boundSummary(s string) string {
	runes := []rune(s)
	if len(runes) <= maxMediaSummaryChars {
		return s
	}
	return string(runes[:maxMediaSummaryChars])
}
