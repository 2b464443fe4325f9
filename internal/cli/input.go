package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// ExitError carries a process exit code for commands whose negative outcome
// has already been printed.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ErrRejected exits 1 without printing anything further.
var ErrRejected = &ExitError{Code: 1}

// EntryInput is the content and metadata a command reads from flags, files or stdin.
type EntryInput struct {
	content      string
	contentFile  string
	metadata     string
	metadataFile string
}

func (in *EntryInput) AddContentFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.content, "content", "", "Entry content")
	cmd.Flags().StringVar(&in.contentFile, "content-file", "", "Read content from file (- for stdin)")
}

func (in *EntryInput) AddMetadataFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&in.metadata, "metadata", "", "Metadata as a JSON object")
	cmd.Flags().StringVar(&in.metadataFile, "metadata-file", "", "Read metadata JSON from file (- for stdin)")
}

func (in *EntryInput) Content(stdin io.Reader) (string, error) {
	switch {
	case in.content != "" && in.contentFile != "":
		return "", errors.New("use either --content or --content-file, not both")
	case in.content != "":
		return in.content, nil
	case in.contentFile != "":
		data, err := readSource(in.contentFile, stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read content: %w", err)
		}
		return string(data), nil
	default:
		return "", errors.New("content is required (--content or --content-file)")
	}
}

// Metadata returns nil without error when no metadata flag was given and
// required is false.
func (in *EntryInput) Metadata(stdin io.Reader, required bool) (map[string]any, error) {
	var raw []byte
	switch {
	case in.metadata != "" && in.metadataFile != "":
		return nil, errors.New("use either --metadata or --metadata-file, not both")
	case in.metadata != "":
		raw = []byte(in.metadata)
	case in.metadataFile != "":
		data, err := readSource(in.metadataFile, stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata: %w", err)
		}
		raw = data
	case required:
		return nil, errors.New("metadata is required (--metadata or --metadata-file)")
	default:
		return nil, nil
	}
	return ParseMetadata(raw)
}

// ParseMetadata decodes a JSON object, rejecting arrays and scalars.
func ParseMetadata(raw []byte) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("metadata must be a JSON object")
	}
	var md map[string]any
	if err := json.Unmarshal(trimmed, &md); err != nil {
		return nil, fmt.Errorf("invalid metadata JSON: %w", err)
	}
	return md, nil
}

func readSource(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// OutputJSON reports whether the persistent --output flag is set.
func OutputJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("output")
	return v
}

func PrintJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
