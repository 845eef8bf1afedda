// Package ingest turns raw sources (text, files, web pages) into bricks.
// Every brick is written through the store's Create path.
package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/brick-matrix/internal/chunker"
	"github.com/rcliao/brick-matrix/internal/model"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultMaxBodySize = 2 << 20
	DefaultParallelism = 4

	maxTitleRunes = 80
)

// Source produces bricks from external material.
type Source interface {
	FromText(ctx context.Context, text string) ([]model.Brick, error)
	FromFile(ctx context.Context, path string) ([]model.Brick, error)
	FromURL(ctx context.Context, rawURL string) ([]model.Brick, error)
}

// Creator persists a draft. *store.KnowledgeStore satisfies it.
type Creator interface {
	Create(ctx context.Context, actor string, d model.Draft) (*model.Brick, error)
}

// Classification is what a Classifier decides about a piece of text.
type Classification struct {
	Type model.BrickType
	Tags []string
}

// Classifier assigns a brick type and tags to a chunk of text.
type Classifier interface {
	Classify(ctx context.Context, title, text string) (Classification, error)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, title, text string) (Classification, error)

func (f ClassifierFunc) Classify(ctx context.Context, title, text string) (Classification, error) {
	return f(ctx, title, text)
}

// StaticClassifier gives every chunk the same type and tags.
type StaticClassifier struct {
	Type model.BrickType
	Tags []string
}

func (c StaticClassifier) Classify(_ context.Context, _, _ string) (Classification, error) {
	t := c.Type
	if t == "" {
		t = model.TypeKnowledge
	}
	return Classification{Type: t, Tags: c.Tags}, nil
}

// Options configures an Ingester.
type Options struct {
	Actor      string
	Classifier Classifier
	// RequireReview creates ingested bricks unauthorized so a reviewer must
	// approve them before they reach a production prompt.
	RequireReview bool
	Weight        int
	Chunking      chunker.Options
	HTTPClient    *http.Client
	Timeout       time.Duration
	MaxBodySize   int64
	Parallelism   int
	Logger        *zap.Logger
}

// Ingester implements Source on top of a Creator.
type Ingester struct {
	creator Creator
	opts    Options
	log     *zap.Logger
}

var _ Source = (*Ingester)(nil)

// New returns an Ingester writing through creator.
func New(creator Creator, opts Options) *Ingester {
	if opts.Classifier == nil {
		opts.Classifier = StaticClassifier{Type: model.TypeKnowledge}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = DefaultMaxBodySize
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = DefaultParallelism
	}
	if opts.Chunking.TargetSize == 0 {
		opts.Chunking = chunker.DefaultOptions()
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Ingester{creator: creator, opts: opts, log: log.Named("ingest")}
}

// FromText chunks text and creates one brick per chunk.
func (in *Ingester) FromText(ctx context.Context, text string) ([]model.Brick, error) {
	drafts, err := in.draftsFromText(ctx, text, nil)
	if err != nil {
		return nil, err
	}
	return in.createAll(ctx, drafts)
}

// FromFile reads path and ingests it according to its extension.
func (in *Ingester) FromFile(ctx context.Context, path string) ([]model.Brick, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var drafts []model.Draft
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		drafts, err = in.draftsFromYAML(ctx, data)
	case ".md", ".markdown":
		drafts, err = in.draftsFromMarkdown(ctx, path, string(data))
	default:
		drafts, err = in.draftsFromText(ctx, string(data), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", path, err)
	}
	return in.createAll(ctx, drafts)
}

// FromURL fetches rawURL and ingests its text. HTML pages are reduced to
// text first. Every brick is tagged with the source host.
func (in *Ingester) FromURL(ctx context.Context, rawURL string) ([]model.Brick, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", rawURL)
	}

	text, err := in.fetch(ctx, u.String())
	if err != nil {
		return nil, err
	}

	drafts, err := in.draftsFromText(ctx, text, []string{"source:" + u.Hostname()})
	if err != nil {
		return nil, fmt.Errorf("ingest %s: %w", rawURL, err)
	}
	return in.createAll(ctx, drafts)
}

// IngestAll ingests several files or URLs concurrently. Results keep the
// order of inputs. The first failure cancels the rest.
func (in *Ingester) IngestAll(ctx context.Context, inputs []string) ([]model.Brick, error) {
	results := make([][]model.Brick, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.opts.Parallelism)
	for i, input := range inputs {
		g.Go(func() error {
			var (
				bricks []model.Brick
				err    error
			)
			if isURL(input) {
				bricks, err = in.FromURL(gctx, input)
			} else {
				bricks, err = in.FromFile(gctx, input)
			}
			results[i] = bricks
			return err
		})
	}
	err := g.Wait()

	var all []model.Brick
	for _, r := range results {
		all = append(all, r...)
	}
	return all, err
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func (in *Ingester) fetch(ctx context.Context, rawURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, in.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "text/html,text/plain;q=0.9,*/*;q=0.5")

	resp, err := in.opts.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, in.opts.MaxBodySize))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}

	in.log.Debug("fetched", zap.String("url", rawURL), zap.Int("bytes", len(body)))

	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "html") || (ct == "" && looksLikeHTML(body)) {
		return htmlToText(string(body))
	}
	return string(body), nil
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

// draftsFromText classifies every chunk of text. Nothing is written if any
// chunk fails classification.
func (in *Ingester) draftsFromText(ctx context.Context, text string, extraTags []string) ([]model.Draft, error) {
	sections := chunker.Split(text, in.opts.Chunking)
	if len(sections) == 0 {
		return nil, &model.ValidationError{Field: "content", Reason: "source has no text"}
	}

	titles := sectionTitles(sections)
	drafts := make([]model.Draft, 0, len(sections))
	for i, sec := range sections {
		c, err := in.opts.Classifier.Classify(ctx, titles[i], sec.Text)
		if err != nil {
			return nil, fmt.Errorf("classify %q: %w", titles[i], err)
		}
		tags := append(append([]string{}, c.Tags...), extraTags...)
		drafts = append(drafts, in.draft(c.Type, titles[i], tags, model.TextContent(sec.Text), in.opts.Weight, nil))
	}
	return drafts, nil
}

func (in *Ingester) draftsFromMarkdown(ctx context.Context, path, content string) ([]model.Draft, error) {
	front, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}
	if front == "" {
		return in.draftsFromText(ctx, body, nil)
	}

	fd, err := parseFrontmatter(front)
	if err != nil {
		return nil, err
	}
	if fd.Content == nil {
		fd.Content = body
	}
	if fd.Title == "" {
		fd.Title = chunker.FirstHeading(body)
	}
	if fd.Title == "" {
		fd.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	d, err := in.fileDraftToDraft(ctx, *fd)
	if err != nil {
		return nil, err
	}
	return []model.Draft{d}, nil
}

func (in *Ingester) draftsFromYAML(ctx context.Context, data []byte) ([]model.Draft, error) {
	list, err := parseDraftList(data)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, &model.ValidationError{Field: "content", Reason: "yaml file has no bricks"}
	}

	drafts := make([]model.Draft, 0, len(list))
	for i, fd := range list {
		d, err := in.fileDraftToDraft(ctx, fd)
		if err != nil {
			return nil, fmt.Errorf("brick %d: %w", i, err)
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// fileDraftToDraft honors an explicit type and asks the classifier only
// when the file leaves it out.
func (in *Ingester) fileDraftToDraft(ctx context.Context, fd fileDraft) (model.Draft, error) {
	content, err := yamlContent(fd.Content)
	if err != nil {
		return model.Draft{}, err
	}

	tags := fd.Tags
	var typ model.BrickType
	if fd.Type != "" {
		typ, err = model.ParseType(fd.Type)
		if err != nil {
			return model.Draft{}, err
		}
	} else {
		c, err := in.opts.Classifier.Classify(ctx, fd.Title, model.ContentText(content))
		if err != nil {
			return model.Draft{}, fmt.Errorf("classify %q: %w", fd.Title, err)
		}
		typ = c.Type
		tags = append(append([]string{}, tags...), c.Tags...)
	}

	weight := fd.Weight
	if weight == 0 {
		weight = in.opts.Weight
	}
	d := in.draft(typ, fd.Title, tags, content, weight, fd.Authorized)
	if err := d.Validate(); err != nil {
		return model.Draft{}, err
	}
	return d, nil
}

func (in *Ingester) draft(typ model.BrickType, title string, tags []string, content []byte, weight int, authorized *bool) model.Draft {
	d := model.Draft{
		Type:           typ,
		Title:          title,
		Tags:           tags,
		Content:        content,
		SynapticWeight: weight,
		IsAuthorized:   authorized,
	}
	if in.opts.RequireReview {
		no := false
		d.IsAuthorized = &no
	}
	return d
}

// createAll validates every draft before writing any of them.
func (in *Ingester) createAll(ctx context.Context, drafts []model.Draft) ([]model.Brick, error) {
	for i := range drafts {
		if err := drafts[i].Validate(); err != nil {
			return nil, err
		}
	}

	created := make([]model.Brick, 0, len(drafts))
	for _, d := range drafts {
		b, err := in.creator.Create(ctx, in.opts.Actor, d)
		if err != nil {
			return created, fmt.Errorf("create %q: %w", d.Title, err)
		}
		created = append(created, *b)
	}
	in.log.Info("ingested", zap.Int("bricks", len(created)))
	return created, nil
}

// sectionTitles names each section after its heading, or its first line
// when there is none. Repeated titles get a part suffix.
func sectionTitles(sections []chunker.Section) []string {
	titles := make([]string, len(sections))
	counts := make(map[string]int)
	for i, sec := range sections {
		t := sec.Heading
		if t == "" {
			t = firstLine(sec.Text)
		}
		titles[i] = truncateTitle(t)
		counts[titles[i]]++
	}

	seen := make(map[string]int)
	for i, t := range titles {
		if counts[t] > 1 {
			seen[t]++
			titles[i] = fmt.Sprintf("%s (part %d/%d)", t, seen[t], counts[t])
		}
	}
	return titles
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func truncateTitle(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleRunes {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:maxTitleRunes])) + "..."
}
