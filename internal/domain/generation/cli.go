package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"command-deck-server-go/internal/platform/logging"
)

// CLIConfig configures the subprocess backend. The prompt is written to
// the child's stdin; the bound secret is passed through the environment.
type CLIConfig struct {
	Command string
	Args    []string
}

// CLIBackend generates by shelling out to a local CLI (the gemini binary
// by default). Stdout is consumed line by line: JSON lines carrying
// {"type":"text","content":...} contribute their content, other JSON lines
// are metadata and are dropped, plain lines pass through with their
// newline preserved. Stderr is captured and attached to exit errors so
// quota classification sees it.
type CLIBackend struct {
	cfg    CLIConfig
	logger *logging.Logger
}

func NewCLIBackend(cfg CLIConfig, logger *logging.Logger) *CLIBackend {
	if cfg.Command == "" {
		cfg.Command = "gemini"
	}
	return &CLIBackend{cfg: cfg, logger: logger}
}

func (b *CLIBackend) command(ctx context.Context, secret, fullPrompt string) (*exec.Cmd, *bytes.Buffer) {
	cmd := exec.CommandContext(ctx, b.cfg.Command, b.cfg.Args...)
	cmd.Env = append(os.Environ(), "GEMINI_API_KEY="+secret)
	cmd.Stdin = strings.NewReader(fullPrompt)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return cmd, stderr
}

func (b *CLIBackend) Generate(ctx context.Context, secret, prompt string, contextItems []string) (string, error) {
	chunks, err := b.Stream(ctx, secret, prompt, contextItems)
	if err != nil {
		return "", err
	}
	var full strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", chunk.Err
		}
		full.WriteString(chunk.Text)
	}
	return strings.TrimSuffix(full.String(), "\n"), nil
}

func (b *CLIBackend) Stream(ctx context.Context, secret, prompt string, contextItems []string) (<-chan StreamChunk, error) {
	if secret == "" {
		return nil, fmt.Errorf("no API key configured")
	}

	cmd, stderr := b.command(ctx, secret, buildPrompt(prompt, contextItems))
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%s stdout pipe: %w", b.cfg.Command, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", b.cfg.Command, err)
	}

	out := make(chan StreamChunk, 10)
	go func() {
		defer close(out)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			text, ok := parseCLILine(scanner.Text())
			if !ok {
				continue
			}
			select {
			case out <- StreamChunk{Text: text}:
			case <-ctx.Done():
				_ = cmd.Process.Kill()
				_ = cmd.Wait()
				return
			}
		}

		scanErr := scanner.Err()
		if err := cmd.Wait(); err != nil {
			detail := strings.TrimSpace(stderr.String())
			if detail == "" {
				detail = "no stderr output"
			}
			out <- StreamChunk{Err: fmt.Errorf("%s exited: %v: %s", b.cfg.Command, err, detail)}
			return
		}
		if scanErr != nil {
			out <- StreamChunk{Err: fmt.Errorf("read %s output: %w", b.cfg.Command, scanErr)}
		}
	}()

	return out, nil
}

type cliLine struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// parseCLILine interprets one stdout line; ok reports whether the line
// contributes text to the response.
func parseCLILine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "{") {
		var parsed cliLine
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			if parsed.Type == "text" {
				return parsed.Content, true
			}
			return "", false
		}
	}
	return line + "\n", true
}
