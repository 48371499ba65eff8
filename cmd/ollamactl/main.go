package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"ollamad/pkg/types"
)

// ollamactl is a thin operator CLI over the ollamad control plane.

type client struct {
	base string
	http *http.Client
}

func (c *client) get(path string) ([]byte, int, error) {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return b, resp.StatusCode, err
}

func (c *client) post(path string, body []byte) ([]byte, int, error) {
	resp, err := c.http.Post(c.base+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	return b, resp.StatusCode, err
}

func printJSON(b []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		fmt.Println(string(b))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}

func buildRootCmd() *cobra.Command {
	c := &client{http: &http.Client{Timeout: 10 * time.Second}}

	root := &cobra.Command{
		Use:           "ollamactl",
		Short:         "Operator CLI for the ollamad control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	defaultAddr := "http://127.0.0.1:5000"
	if v := os.Getenv("OLLAMAD_URL"); v != "" {
		defaultAddr = v
	}
	root.PersistentFlags().StringVar(&c.base, "addr", defaultAddr, "Base URL of the ollamad control plane")

	root.AddCommand(&cobra.Command{
		Use:   "instances",
		Short: "List workers and their load metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, status, err := c.get("/instances")
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("status %d: %s", status, b)
			}
			return printJSON(b)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show aggregate cluster state",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, status, err := c.get("/cluster/status")
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("status %d: %s", status, b)
			}
			return printJSON(b)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check whether any worker is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, status, err := c.get("/health")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			if status != http.StatusOK {
				return fmt.Errorf("cluster unhealthy (status %d)", status)
			}
			return nil
		},
	})

	var count int
	scale := &cobra.Command{
		Use:   "scale up|down",
		Short: "Manually add or remove workers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, _ := json.Marshal(types.ScaleRequest{Action: args[0], Count: count})
			b, status, err := c.post("/cluster/scale", body)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("status %d: %s", status, b)
			}
			fmt.Println(string(b))
			return nil
		},
	}
	scale.Flags().IntVarP(&count, "count", "n", 1, "Number of workers to add or remove")
	root.AddCommand(scale)

	toggle := func(verb string) *cobra.Command {
		return &cobra.Command{
			Use:   verb + " <port>",
			Short: "Toggle dispatch to the worker on <port> (" + verb + ")",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if _, err := strconv.Atoi(args[0]); err != nil {
					return fmt.Errorf("port must be a number: %q", args[0])
				}
				b, status, err := c.post("/instances/"+args[0]+"/"+verb, nil)
				if err != nil {
					return err
				}
				if status != http.StatusOK {
					return fmt.Errorf("status %d: %s", status, b)
				}
				fmt.Println(string(b))
				return nil
			},
		}
	}
	root.AddCommand(toggle("disable"), toggle("enable"))

	users := &cobra.Command{Use: "users", Short: "Per-user request accounting"}
	users.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear the per-user request counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, status, err := c.post("/users/reset", nil)
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("status %d: %s", status, b)
			}
			fmt.Println(string(b))
			return nil
		},
	})
	root.AddCommand(users)

	return root
}

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
