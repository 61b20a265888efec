// Remote backend: a subprocess speaking line-delimited JSON requests
// and responses, adapted from the teacher's generic PluginClient
// (internal/plugin/plugin.go in estevaofon-noxy, which spawns an
// arbitrary executable and calls Method/Params over stdin/stdout).
// That surface is narrowed here to the three chunk-store operations
// cmd/loxvm-store-dynamodb implements, since this language has no
// plugin/import system for a generic RPC surface to serve (spec.md's
// Non-goals rule out multi-chunk linking, which is what would have
// made the general plugin registry relevant).
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"loxvm/internal/chunk"
)

// request and response mirror the teacher's PluginRequest/
// PluginResponse shape, trimmed to the fields this protocol needs.
type request struct {
	Method   string          `json:"method"`
	Name     string          `json:"name,omitempty"`
	FileName string          `json:"file_name,omitempty"`
	Source   string          `json:"source,omitempty"`
	Chunk    json.RawMessage `json:"chunk,omitempty"`
}

type response struct {
	Source  string          `json:"source,omitempty"`
	Chunk   json.RawMessage `json:"chunk,omitempty"`
	Found   bool            `json:"found,omitempty"`
	Entries []remoteEntry   `json:"entries,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// remoteEntry mirrors Entry without the time.Time, since the wire
// format carries a unix timestamp instead.
type remoteEntry struct {
	Name     string `json:"name"`
	FileName string `json:"file_name"`
	SavedAt  int64  `json:"saved_at"`
}

// RemoteClient talks to a chunk-store subprocess over stdin/stdout,
// one request in flight at a time.
type RemoteClient struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner
	mu     sync.Mutex
}

// StartRemote launches executablePath (normally cmd/loxvm-store-dynamodb)
// and returns a client ready to Save/Load/List against it.
func StartRemote(executablePath string, args ...string) (*RemoteClient, error) {
	cmd := exec.Command(executablePath, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("store: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("store: stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("store: start %s: %w", executablePath, err)
	}
	return &RemoteClient{cmd: cmd, stdin: stdin, stdout: bufio.NewScanner(stdout)}, nil
}

func (rc *RemoteClient) Close() error {
	rc.stdin.Close()
	return rc.cmd.Wait()
}

func (rc *RemoteClient) call(req request) (response, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	body, err := json.Marshal(req)
	if err != nil {
		return response{}, fmt.Errorf("store: marshal request: %w", err)
	}
	if _, err := rc.stdin.Write(append(body, '\n')); err != nil {
		return response{}, fmt.Errorf("store: write request: %w", err)
	}
	if !rc.stdout.Scan() {
		if err := rc.stdout.Err(); err != nil {
			return response{}, fmt.Errorf("store: read response: %w", err)
		}
		return response{}, fmt.Errorf("store: remote process closed its output")
	}
	var resp response
	if err := json.Unmarshal(rc.stdout.Bytes(), &resp); err != nil {
		return response{}, fmt.Errorf("store: unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return response{}, fmt.Errorf("store: remote error: %s", resp.Error)
	}
	return resp, nil
}

func (rc *RemoteClient) Save(name, fileName, source string, c *chunk.Chunk) error {
	payload, err := Encode(c)
	if err != nil {
		return err
	}
	_, err = rc.call(request{Method: "Save", Name: name, FileName: fileName, Source: source, Chunk: payload})
	return err
}

func (rc *RemoteClient) Load(name string) (source string, c *chunk.Chunk, ok bool, err error) {
	resp, err := rc.call(request{Method: "Load", Name: name})
	if err != nil {
		return "", nil, false, err
	}
	if !resp.Found {
		return "", nil, false, nil
	}
	c, err = Decode(resp.Chunk)
	if err != nil {
		return "", nil, false, err
	}
	return resp.Source, c, true, nil
}

func (rc *RemoteClient) List() ([]Entry, error) {
	resp, err := rc.call(request{Method: "List"})
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(resp.Entries))
	for i, e := range resp.Entries {
		entries[i] = Entry{Name: e.Name, FileName: e.FileName, SavedAt: time.Unix(e.SavedAt, 0)}
	}
	return entries, nil
}
