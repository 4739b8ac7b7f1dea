package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rscheiwe/open-skills/internal/model"
	"github.com/rscheiwe/open-skills/internal/skill"
)

func publishCmd() *cobra.Command {
	var server string

	cmd := &cobra.Command{
		Use:   "publish <dir>",
		Short: "Publish a skill bundle to a running server",
		Long: `Validates the bundle locally, then asks the server to publish it.
The bundle directory must be readable by the server, which loads it from
disk; publish does not upload files.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(server, args[0])
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "base URL of the open-skills server")
	return cmd
}

func runPublish(server, dir string) error {
	// Validate locally first so a broken bundle fails fast with a precise
	// error instead of a round trip.
	bundle, err := skill.LoadBundle(dir)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"bundle_dir": bundle.Dir})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	url := strings.TrimRight(server, "/") + "/api/v1/skills"
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("publish request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("server rejected publish (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server rejected publish: %s", resp.Status)
	}

	var v model.SkillVersion
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return fmt.Errorf("decode publish response: %w", err)
	}
	fmt.Printf("Published %s (version id %s)\n", v.FullName(), v.ID)
	return nil
}
