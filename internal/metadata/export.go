package metadata

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// RedactedPlaceholder replaces the key field in redacted exports.
const RedactedPlaceholder = "***REDACTED***"

type jsonKey struct {
	KeyName   string  `json:"key_name"`
	Added     string  `json:"added"`
	Key       string  `json:"key"`
	Status    string  `json:"status"`
	RevokedOn *string `json:"revoked_on"`
}

type xmlServices struct {
	XMLName  xml.Name     `xml:"services"`
	Services []xmlService `xml:"service"`
}

type xmlService struct {
	Name string   `xml:"name,attr"`
	Keys []xmlKey `xml:"key"`
}

type xmlKey struct {
	KeyName   string `xml:"key_name"`
	Added     string `xml:"added"`
	KeyValue  string `xml:"key_value"`
	Status    string `xml:"status"`
	RevokedOn string `xml:"revoked_on"`
}

func keyField(r Record, redact bool) string {
	if redact {
		return RedactedPlaceholder
	}
	return r.Key
}

func formatAdded(r Record) string {
	if r.Added.IsZero() {
		return ""
	}
	return FormatTime(r.Added)
}

// ExportJSON writes {"<service>": [{key_name, added, key, status, revoked_on}]}
// indented by four spaces.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer, redact bool) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	doc := make(map[string][]jsonKey, len(snap))
	for _, svc := range snap {
		keys := make([]jsonKey, 0, len(svc.Records))
		for _, r := range svc.Records {
			keys = append(keys, jsonKey{
				KeyName:   r.KeyName,
				Added:     formatAdded(r),
				Key:       keyField(r, redact),
				Status:    r.Status,
				RevokedOn: formatOptionalTime(r.RevokedOn),
			})
		}
		doc[svc.Service] = keys
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode JSON export: %w", err)
	}
	return nil
}

// ExportXML writes <services><service name="..."><key>...</key></service></services>.
func (s *Store) ExportXML(ctx context.Context, w io.Writer, redact bool) error {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return err
	}

	doc := xmlServices{Services: make([]xmlService, 0, len(snap))}
	for _, svc := range snap {
		xs := xmlService{Name: svc.Service}
		for _, r := range svc.Records {
			revoked := ""
			if r.RevokedOn != nil {
				revoked = FormatTime(*r.RevokedOn)
			}
			xs.Keys = append(xs.Keys, xmlKey{
				KeyName:   r.KeyName,
				Added:     formatAdded(r),
				KeyValue:  keyField(r, redact),
				Status:    r.Status,
				RevokedOn: revoked,
			})
		}
		doc.Services = append(doc.Services, xs)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode XML export: %w", err)
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return err
	}
	return nil
}

// ExportJSONFile writes the JSON export to path with mode 0600.
func (s *Store) ExportJSONFile(ctx context.Context, path string, redact bool) error {
	return writeExport(path, func(w io.Writer) error {
		return s.ExportJSON(ctx, w, redact)
	})
}

// ExportXMLFile writes the XML export to path with mode 0600.
func (s *Store) ExportXMLFile(ctx context.Context, path string, redact bool) error {
	return writeExport(path, func(w io.Writer) error {
		return s.ExportXML(ctx, w, redact)
	})
}

func writeExport(path string, write func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	// O_CREATE leaves the mode of an existing file untouched
	if err := f.Chmod(0600); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to set export file permissions: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
