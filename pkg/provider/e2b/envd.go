package e2b

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/angelhodar/neuro-exercises/pkg/observability"
	"github.com/angelhodar/neuro-exercises/pkg/provider"
)

const (
	envdUser = "user"

	// Connect streaming envelope flags.
	flagEndStream = 0x02

	maxEnvelopeSize = 16 << 20
)

// writeEnvelope frames msg as one Connect streaming message: a flags byte,
// a big-endian uint32 length, then the JSON payload.
func writeEnvelope(w io.Writer, flags byte, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var hdr [5]byte
	hdr[0] = flags
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// readEnvelope reads one framed message.
func readEnvelope(r io.Reader) (byte, []byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[1:])
	if n > maxEnvelopeSize {
		return 0, nil, fmt.Errorf("envelope of %d bytes exceeds limit", n)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return 0, nil, err
	}
	return hdr[0], data, nil
}

func (s *Sandbox) envdRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.p.envdURL(s.id, s.domain)+path, body)
	if err != nil {
		return nil, err
	}
	if s.accessToken != "" {
		req.Header.Set("X-Access-Token", s.accessToken)
	}
	return req, nil
}

// runProcess starts a process through the envd process service and reads
// its event stream until the process ends.
func (s *Sandbox) runProcess(ctx context.Context, cmd provider.Command) (res *provider.CommandResult, err error) {
	start := time.Now()
	defer func() { observability.ObserveProvider(providerName, "run", start, err) }()

	var body bytes.Buffer
	args := cmd.Args
	if args == nil {
		args = []string{}
	}
	if err := writeEnvelope(&body, 0, startRequest{Process: processConfig{
		Cmd:  cmd.Name,
		Args: args,
		Envs: cmd.Env,
		Cwd:  cmd.Cwd,
	}}); err != nil {
		return nil, err
	}

	req, err := s.envdRequest(ctx, http.MethodPost, "/process.Process/Start", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/connect+json")
	req.Header.Set("Connect-Protocol-Version", "1")

	resp, err := s.p.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("start process: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &apiError{Status: resp.StatusCode, Body: string(data)}
	}

	var stdout, stderr bytes.Buffer
	r := bufio.NewReader(resp.Body)
	for {
		flags, data, err := readEnvelope(r)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, errors.New("process stream ended before the process exited")
			}
			return nil, fmt.Errorf("read process stream: %w", err)
		}

		if flags&flagEndStream != 0 {
			var eos endOfStream
			if err := json.Unmarshal(data, &eos); err == nil && eos.Error != nil {
				return nil, fmt.Errorf("envd %s: %s", eos.Error.Code, eos.Error.Message)
			}
			return nil, errors.New("process stream ended before the process exited")
		}

		var ev processEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode process event: %w", err)
		}
		switch {
		case ev.Event.Data != nil:
			stdout.Write(ev.Event.Data.Stdout)
			stderr.Write(ev.Event.Data.Stderr)
		case ev.Event.End != nil:
			if ev.Event.End.Error != "" && !ev.Event.End.Exited {
				return nil, fmt.Errorf("process failed: %s", ev.Event.End.Error)
			}
			return &provider.CommandResult{
				ExitCode: ev.Event.End.ExitCode,
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}, nil
		}
	}
}

// uploadFiles writes files with one multipart request to the envd
// filesystem endpoint. Each part's filename is the destination path.
func (s *Sandbox) uploadFiles(ctx context.Context, files []provider.File) (err error) {
	start := time.Now()
	defer func() { observability.ObserveProvider(providerName, "write", start, err) }()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := mw.CreateFormFile("file", f.Path)
		if err != nil {
			return err
		}
		if _, err := part.Write(f.Content); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.p.cfg.RequestTimeout)
	defer cancel()

	query := url.Values{"username": {envdUser}}
	req, err := s.envdRequest(ctx, http.MethodPost, "/files?"+query.Encode(), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.p.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload files: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &apiError{Status: resp.StatusCode, Body: string(data)}
	}
	return nil
}
