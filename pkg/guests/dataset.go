package guests

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// HubSourcePrefix marks a source as a Hugging Face dataset id, e.g. "hf:agents-course/unit3-invitees".
const HubSourcePrefix = "hf:"

const DefaultDatasetsServerURL = "https://datasets-server.huggingface.co"

// Load reads guests from source: either "hf:<dataset>" or a local file.
func Load(ctx context.Context, source string, hub *HubLoader) ([]Guest, error) {
	if strings.HasPrefix(source, HubSourcePrefix) {
		if hub == nil {
			hub = NewHubLoader()
		}
		return hub.Load(ctx, strings.TrimPrefix(source, HubSourcePrefix), "train")
	}
	return LoadFile(source)
}

// LoadFile reads a JSON array, JSON lines, YAML list or CSV file (with a header row).
func LoadFile(path string) ([]Guest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read guest file %s", path)
	}

	var guests []Guest
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(b, &guests); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	case ".jsonl", ".ndjson":
		guests, err = decodeJSONLines(b)
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &guests); err != nil {
			return nil, errors.Wrapf(err, "decode %s", path)
		}
	case ".csv":
		guests, err = DecodeCSV(bytes.NewReader(b))
	default:
		return nil, errors.Errorf("unsupported guest file type: %s", path)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return guests, nil
}

func decodeJSONLines(b []byte) ([]Guest, error) {
	var out []Guest
	scanner := bufio.NewScanner(bytes.NewReader(b))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var g Guest
		if err := json.Unmarshal([]byte(line), &g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, scanner.Err()
}

// DecodeCSV reads guests from CSV with a header naming the columns.
func DecodeCSV(r io.Reader) ([]Guest, error) {
	cr := csv.NewReader(r)
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	cols := map[string]int{}
	for i, h := range records[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, errors.New("csv has no name column")
	}
	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	out := make([]Guest, 0, len(records)-1)
	for _, rec := range records[1:] {
		out = append(out, Guest{
			Name:        field(rec, "name"),
			Relation:    field(rec, "relation"),
			Description: field(rec, "description"),
			Email:       field(rec, "email"),
		})
	}
	return out, nil
}

// HubLoader pages through the datasets-server rows API.
type HubLoader struct {
	BaseURL  string
	Token    string
	PageSize int
	Client   *http.Client
}

func NewHubLoader() *HubLoader {
	return &HubLoader{
		BaseURL:  DefaultDatasetsServerURL,
		PageSize: 100,
		Client:   http.DefaultClient,
	}
}

type rowsResponse struct {
	Rows []struct {
		RowIdx int   `json:"row_idx"`
		Row    Guest `json:"row"`
	} `json:"rows"`
	NumRowsTotal int `json:"num_rows_total"`
}

func (h *HubLoader) Load(ctx context.Context, dataset, split string) ([]Guest, error) {
	pageSize := h.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	var out []Guest
	for offset := 0; ; offset += pageSize {
		page, err := h.fetch(ctx, dataset, split, offset, pageSize)
		if err != nil {
			return nil, err
		}
		for _, r := range page.Rows {
			out = append(out, r.Row)
		}
		if len(page.Rows) == 0 || offset+pageSize >= page.NumRowsTotal {
			break
		}
	}
	log.Debug().Str("dataset", dataset).Int("guests", len(out)).Msg("guests: loaded dataset from hub")
	return out, nil
}

func (h *HubLoader) fetch(ctx context.Context, dataset, split string, offset, length int) (*rowsResponse, error) {
	q := url.Values{}
	q.Set("dataset", dataset)
	q.Set("config", "default")
	q.Set("split", split)
	q.Set("offset", fmt.Sprint(offset))
	q.Set("length", fmt.Sprint(length))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(h.BaseURL, "/")+"/rows?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if h.Token != "" {
		req.Header.Set("Authorization", "Bearer "+h.Token)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch dataset rows")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.Errorf("datasets server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page rowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, errors.Wrap(err, "decode dataset rows")
	}
	return &page, nil
}
