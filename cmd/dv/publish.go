package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sonnes/drishti/core"
	"github.com/sonnes/drishti/filekind"
	"github.com/sonnes/drishti/server"
	"github.com/urfave/cli/v3"
)

func publishCmd() *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Publish a file once to a running view server",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Value: "127.0.0.1",
			},
			&cli.IntFlag{
				Name:  "port",
				Value: 8000,
			},
			&cli.StringFlag{
				Name:    "section",
				Aliases: []string{"s"},
				Usage:   "View section",
				Value:   "file",
			},
			&cli.StringFlag{
				Name:    "label",
				Aliases: []string{"l"},
				Usage:   "View label (default: file name)",
			},
			&cli.IntFlag{
				Name:  "max-rows",
				Usage: "Row cap for tabular files",
				Value: 500,
			},
			&cli.FloatFlag{
				Name:  "update-limit-s",
				Usage: "Server-side throttle window, in seconds",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Bypass server throttling",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("path is required")
			}

			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			coerced, err := filekind.Coerce(path, raw, filekind.Options{MaxRows: int(cmd.Int("max-rows"))})
			if err != nil {
				return err
			}

			req := server.PublishRequest{
				Kind:    string(coerced.PublishKind),
				Section: cmd.String("section"),
				Label:   cmd.String("label"),
				Force:   cmd.Bool("force"),
			}
			if req.Label == "" {
				req.Label = filepath.Base(path)
			}
			if cmd.IsSet("update-limit-s") {
				v := cmd.Float("update-limit-s")
				req.UpdateLimitS = &v
			}
			if sample, ok := coerced.Obj.(core.TableSample); ok && coerced.PublishKind == filekind.PublishTable {
				req.Table = &sample
			} else {
				req.Artifact = coerced.Obj
				req.ArtifactKind = string(coerced.ArtifactKind)
			}

			baseURL := fmt.Sprintf("http://%s:%d", cmd.String("host"), cmd.Int("port"))
			resp, err := postPublish(baseURL, req)
			if err != nil {
				return err
			}

			if resp.Ignored {
				fmt.Fprintf(cmd.Writer, "ignored (%s): %s\n", resp.Reason, resp.ViewID)
			} else {
				fmt.Fprintf(cmd.Writer, "published: %s\n", resp.ViewID)
			}
			return nil
		},
	}
}

func postPublish(baseURL string, req server.PublishRequest) (server.PublishResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return server.PublishResponse{}, err
	}

	url := baseURL + "/publish"
	client := &http.Client{Timeout: 5 * time.Second}
	httpResp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return server.PublishResponse{}, fmt.Errorf("post %s: %w", url, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return server.PublishResponse{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errBody struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &errBody) == nil && errBody.Error != "" {
			return server.PublishResponse{}, fmt.Errorf("server rejected publish: %s (status %d)", errBody.Error, httpResp.StatusCode)
		}
		return server.PublishResponse{}, fmt.Errorf("server rejected publish: status %d", httpResp.StatusCode)
	}

	var resp server.PublishResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return server.PublishResponse{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
