package launch

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
)

// GenerateOptions merges the forced overrides over the template read from
// settingsPath and returns the resulting options map. The overrides make the
// backend eligible for every filetype and as eager as possible; the broker,
// not the backend, decides when requests are sent.
func GenerateOptions(settingsPath string, secret []byte) (map[string]interface{}, error) {
	raw, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("launch: read settings template: %w", err)
	}
	var options map[string]interface{}
	if err := json.Unmarshal(raw, &options); err != nil {
		return nil, fmt.Errorf("launch: parse settings template: %w", err)
	}

	// Whitelist everything, blacklist nothing.
	options["filetype_whitelist"] = map[string]interface{}{"*": 1}
	options["filetype_blacklist"] = map[string]interface{}{}

	// The backend reads the secret from the options file; it is never sent
	// over the wire.
	options["hmac_secret"] = base64.StdEncoding.EncodeToString(secret)

	// Maximum eagerness.
	options["min_num_of_chars_for_completion"] = 0
	options["min_num_identifier_candidate_chars"] = 0
	options["collect_identifiers_from_comments_and_strings"] = 1
	options["complete_in_comments"] = 1
	options["complete_in_strings"] = 1

	return options, nil
}

// WriteOptionsFile writes the merged options to a secure temp file and
// returns its path. The backend deletes the file after reading it; on launch
// failure the caller must clean it up with RemoveOptionsFile.
func WriteOptionsFile(settingsPath string, secret []byte) (string, error) {
	options, err := GenerateOptions(settingsPath, secret)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("launch: encode options: %w", err)
	}

	f, err := os.CreateTemp("", "ycmd_settings_*.json")
	if err != nil {
		return "", fmt.Errorf("launch: create options file: %w", err)
	}
	path := f.Name()
	if err := os.Chmod(path, 0o600); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("launch: restrict options file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("launch: write options file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("launch: close options file: %w", err)
	}
	return path, nil
}

// RemoveOptionsFile deletes a leftover options file. Best-effort: the backend
// normally deletes it on read, so a missing file is not an error.
func RemoveOptionsFile(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
