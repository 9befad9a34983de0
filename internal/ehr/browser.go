package ehr

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ChromeContainer runs the headless Chrome instance the Charm client drives.
// The container shares the host network so the DevTools port is reachable on
// localhost without port mapping.
type ChromeContainer struct {
	cli    *client.Client
	id     string
	port   int
	logger zerolog.Logger
}

// StartChrome pulls the browser image if needed, starts it, and waits for the
// DevTools endpoint to answer.
func StartChrome(ctx context.Context, cli *client.Client, browserImage string, port int, logger zerolog.Logger) (*ChromeContainer, error) {
	logger = logger.With().Str("component", "browser").Logger()

	if _, err := cli.ImageInspect(ctx, browserImage); err != nil {
		logger.Info().Str("image", browserImage).Msg("browser image not found locally, pulling")
		reader, pullErr := cli.ImagePull(ctx, browserImage, image.PullOptions{})
		if pullErr != nil {
			return nil, errors.Wrap(pullErr, "pulling browser image")
		}
		io.Copy(io.Discard, reader)
		reader.Close()
	}

	resp, err := cli.ContainerCreate(ctx,
		&container.Config{
			Image: browserImage,
			Cmd: []string{
				"--headless",
				"--no-sandbox",
				"--disable-gpu",
				fmt.Sprintf("--remote-debugging-port=%d", port),
				"--remote-debugging-address=0.0.0.0",
			},
		},
		&container.HostConfig{
			NetworkMode: container.NetworkMode("host"),
			AutoRemove:  true,
		}, nil, nil, "")
	if err != nil {
		return nil, errors.Wrap(err, "creating browser container")
	}

	c := &ChromeContainer{cli: cli, id: resp.ID, port: port, logger: logger}
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, errors.Wrap(err, "starting browser container")
	}
	logger.Info().Str("container_id", resp.ID).Int("port", port).Msg("browser container started")

	if err := c.waitReady(ctx); err != nil {
		c.Stop(context.Background())
		return nil, err
	}
	return c, nil
}

// ControlURL is the DevTools endpoint rod attaches to.
func (c *ChromeContainer) ControlURL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", c.port)
}

func (c *ChromeContainer) waitReady(ctx context.Context) error {
	versionURL := c.ControlURL() + "/json/version"
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, versionURL, nil)
		resp, err := http.DefaultClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return errors.Errorf("browser devtools endpoint %s did not come up", versionURL)
}

// Stop tears the container down. Safe to call after a failed start.
func (c *ChromeContainer) Stop(ctx context.Context) {
	timeout := 10
	if err := c.cli.ContainerStop(ctx, c.id, container.StopOptions{Timeout: &timeout}); err != nil {
		c.logger.Warn().Err(err).Str("container_id", c.id).Msg("failed to stop browser container")
	}
}
