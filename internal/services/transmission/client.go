package transmission

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"seedwarden/internal/domain"
	"seedwarden/internal/domain/ports"
)

const (
	DefaultURL     = "http://localhost:9091/transmission/rpc"
	sessionHeader  = "X-Transmission-Session-Id"
	maxErrorBody   = 512
	defaultTimeout = 30 * time.Second
)

var torrentFields = []string{
	"id", "hashString", "name", "downloadDir", "addedDate", "doneDate",
	"status", "sizeWhenDone", "files", "fileStats", "trackerStats",
}

// ErrRPC is returned when the daemon answers with a result other than success.
var ErrRPC = errors.New("transmission rpc error")

type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	// RateLimit caps requests per second; zero or negative disables pacing.
	RateLimit float64
}

// Client talks to a Transmission daemon over its JSON RPC endpoint.
type Client struct {
	http     *http.Client
	url      string
	username string
	password string
	limiter  *rate.Limiter

	mu        sync.Mutex
	sessionID string
}

var _ ports.Gateway = (*Client)(nil)

func NewClient(cfg Config) *Client {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		url = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		url:      url,
		username: cfg.Username,
		password: cfg.Password,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

type rpcRequest struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
}

type rpcResponse struct {
	Result    string          `json:"result"`
	Arguments json.RawMessage `json:"arguments"`
}

type idsArgs struct {
	IDs []int64 `json:"ids"`
}

type removeArgs struct {
	IDs             []int64 `json:"ids"`
	DeleteLocalData bool    `json:"delete-local-data"`
}

type getArgs struct {
	Fields []string `json:"fields"`
}

type getResult struct {
	Torrents []rpcTorrent `json:"torrents"`
}

type rpcTorrent struct {
	ID           int64            `json:"id"`
	HashString   string           `json:"hashString"`
	Name         string           `json:"name"`
	DownloadDir  string           `json:"downloadDir"`
	AddedDate    int64            `json:"addedDate"`
	DoneDate     int64            `json:"doneDate"`
	Status       int              `json:"status"`
	SizeWhenDone int64            `json:"sizeWhenDone"`
	Files        []rpcFile        `json:"files"`
	FileStats    []rpcFileStat    `json:"fileStats"`
	TrackerStats []rpcTrackerStat `json:"trackerStats"`
}

type rpcFile struct {
	Name   string `json:"name"`
	Length int64  `json:"length"`
}

type rpcFileStat struct {
	Wanted bool `json:"wanted"`
}

type rpcTrackerStat struct {
	Host             string `json:"host"`
	LastAnnounceTime int64  `json:"lastAnnounceTime"`
}

func (c *Client) ListTorrents(ctx context.Context) ([]domain.Torrent, error) {
	var res getResult
	if err := c.call(ctx, "torrent-get", getArgs{Fields: torrentFields}, &res); err != nil {
		return nil, err
	}
	out := make([]domain.Torrent, 0, len(res.Torrents))
	for _, t := range res.Torrents {
		out = append(out, toDomain(t))
	}
	return out, nil
}

func (c *Client) StartTorrent(ctx context.Context, id domain.TorrentID) error {
	return c.call(ctx, "torrent-start", idsArgs{IDs: []int64{int64(id)}}, nil)
}

func (c *Client) StopTorrent(ctx context.Context, id domain.TorrentID) error {
	return c.call(ctx, "torrent-stop", idsArgs{IDs: []int64{int64(id)}}, nil)
}

func (c *Client) ReannounceTorrent(ctx context.Context, id domain.TorrentID) error {
	return c.call(ctx, "torrent-reannounce", idsArgs{IDs: []int64{int64(id)}}, nil)
}

func (c *Client) RemoveTorrent(ctx context.Context, id domain.TorrentID, deleteData bool) error {
	return c.call(ctx, "torrent-remove", removeArgs{IDs: []int64{int64(id)}, DeleteLocalData: deleteData}, nil)
}

// call posts one RPC request. A 409 answer carries a fresh session id; the
// request is retried once with it.
func (c *Client) call(ctx context.Context, method string, args any, out any) error {
	body, err := json.Marshal(rpcRequest{Method: method, Arguments: args})
	if err != nil {
		return err
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		resp, err := c.do(ctx, body)
		if err != nil {
			return fmt.Errorf("%s: %w", method, err)
		}

		if resp.StatusCode == http.StatusConflict {
			id := resp.Header.Get(sessionHeader)
			drain(resp)
			if id == "" {
				return fmt.Errorf("%s: conflict without session id", method)
			}
			c.setSessionID(id)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			drain(resp)
			return fmt.Errorf("%s: unexpected status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
		}

		var rpcResp rpcResponse
		err = json.NewDecoder(resp.Body).Decode(&rpcResp)
		drain(resp)
		if err != nil {
			return fmt.Errorf("%s: decode response: %w", method, err)
		}
		if rpcResp.Result != "success" {
			return fmt.Errorf("%w: %s: %s", ErrRPC, method, rpcResp.Result)
		}
		if out != nil && len(rpcResp.Arguments) > 0 {
			if err := json.Unmarshal(rpcResp.Arguments, out); err != nil {
				return fmt.Errorf("%s: decode arguments: %w", method, err)
			}
		}
		return nil
	}
	return fmt.Errorf("%s: session id rejected", method)
}

func (c *Client) do(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if id := c.getSessionID(); id != "" {
		req.Header.Set(sessionHeader, id)
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	return c.http.Do(req)
}

func (c *Client) getSessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}

func toDomain(t rpcTorrent) domain.Torrent {
	files := make([]domain.TorrentFile, 0, len(t.Files))
	for i, f := range t.Files {
		selected := true
		if i < len(t.FileStats) {
			selected = t.FileStats[i].Wanted
		}
		files = append(files, domain.TorrentFile{Path: f.Name, Length: f.Length, Selected: selected})
	}

	trackers := make([]domain.TrackerStat, 0, len(t.TrackerStats))
	for _, tr := range t.TrackerStats {
		trackers = append(trackers, domain.TrackerStat{Host: tr.Host, LastAnnounceAt: unixTime(tr.LastAnnounceTime)})
	}

	return domain.Torrent{
		ID:          domain.TorrentID(t.ID),
		Hash:        t.HashString,
		Name:        t.Name,
		DownloadDir: t.DownloadDir,
		AddedAt:     unixTime(t.AddedDate),
		DoneAt:      unixTime(t.DoneDate),
		Status:      mapStatus(t.Status),
		SizeBytes:   t.SizeWhenDone,
		Files:       files,
		Trackers:    trackers,
	}
}

// mapStatus folds the daemon's status codes: 0 stopped, 1-2 verifying,
// 3-4 downloading, 5-6 seeding. Verification counts as downloading.
func mapStatus(code int) domain.TorrentStatus {
	switch code {
	case 0:
		return domain.TorrentStopped
	case 5, 6:
		return domain.TorrentSeeding
	default:
		return domain.TorrentDownloading
	}
}

func unixTime(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
