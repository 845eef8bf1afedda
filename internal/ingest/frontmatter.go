package ingest

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rcliao/brick-matrix/internal/model"
)

// fileDraft is the YAML shape of a brick in front matter or a .yaml file.
type fileDraft struct {
	Title      string   `yaml:"title"`
	Type       string   `yaml:"type"`
	Tags       []string `yaml:"tags"`
	Weight     int      `yaml:"weight"`
	Authorized *bool    `yaml:"authorized"`
	Content    any      `yaml:"content"`
}

// splitFrontmatter separates a leading "---" YAML block from the body.
// Text without front matter comes back as the body.
func splitFrontmatter(content string) (string, string, error) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "---") {
		return "", content, nil
	}

	lines := strings.Split(content, "\n")
	closing := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			closing = i
			break
		}
	}
	if closing == -1 {
		return "", content, fmt.Errorf("front matter not closed")
	}

	front := strings.Join(lines[1:closing], "\n")
	body := strings.Join(lines[closing+1:], "\n")
	return front, strings.TrimSpace(body), nil
}

func parseFrontmatter(front string) (*fileDraft, error) {
	var fd fileDraft
	if err := yaml.Unmarshal([]byte(front), &fd); err != nil {
		return nil, fmt.Errorf("parse front matter: %w", err)
	}
	return &fd, nil
}

func parseDraftList(data []byte) ([]fileDraft, error) {
	var list []fileDraft
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse yaml bricks: %w", err)
	}
	return list, nil
}

// yamlContent turns a decoded YAML value into brick content. Strings stay
// plain text; maps and lists become structured JSON.
func yamlContent(v any) (json.RawMessage, error) {
	switch c := v.(type) {
	case nil:
		return nil, nil
	case string:
		return model.TextContent(strings.TrimSpace(c)), nil
	default:
		b, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("encode content: %w", err)
		}
		return b, nil
	}
}
