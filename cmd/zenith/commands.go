package main

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/zenith/pkg/core/types"
	"github.com/vango-go/zenith/pkg/studio"
)

type opener func(cmd *cobra.Command) (*app, error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "zenith",
		Short:         "ZENITH multimedia studios",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("data-dir", defaultDataDir(), "directory for local history and assets")
	root.PersistentFlags().Bool("json", false, "print results as JSON")
	root.PersistentFlags().String("uid", "", "user ID for campaigns")

	root.AddCommand(
		newTextCmd(open),
		newImageCmd(open),
		newVideoCmd(open),
		newOrchestrateCmd(open),
		newHistoryCmd(open),
		newCampaignsCmd(open),
	)
	return root
}

func newTextCmd(open opener) *cobra.Command {
	var useSearch bool
	var templateID string
	cmd := &cobra.Command{
		Use:   "text [prompt...]",
		Short: "Generate text, optionally grounded with web search",
		Example: `  zenith text --search "latest trends in urban gardening"
  zenith text --template blog "home composting"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt := strings.Join(args, " ")
			if templateID != "" {
				tpl, ok := findTemplate(templateID)
				if !ok {
					return fmt.Errorf("unknown template %q", templateID)
				}
				prompt = strings.TrimSpace(tpl.Text + "\n\n" + prompt)
			}
			a, err := open(cmd)
			if err != nil {
				return err
			}
			item, err := a.text.Generate(cmd.Context(), prompt, useSearch)
			if err != nil {
				return err
			}
			return printResult(cmd, item, func(w io.Writer) {
				fmt.Fprintln(w, item.Text)
				if len(item.Sources) > 0 {
					fmt.Fprintln(w, "\nSources:")
					for _, s := range item.Sources {
						fmt.Fprintf(w, "  - %s %s\n", s.Title, s.URI)
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&useSearch, "search", false, "ground the answer with web search")
	cmd.Flags().StringVar(&templateID, "template", "", "start from a template (see 'zenith text templates')")

	cmd.AddCommand(&cobra.Command{
		Use:   "templates",
		Short: "List text templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			templates := studio.Templates()
			return printResult(cmd, templates, func(w io.Writer) {
				for _, t := range templates {
					fmt.Fprintf(w, "%-10s %s\n", t.ID, t.Label)
				}
			})
		},
	})
	return cmd
}

func findTemplate(id string) (studio.Template, bool) {
	for _, t := range studio.Templates() {
		if t.ID == id {
			return t, true
		}
	}
	return studio.Template{}, false
}

func newImageCmd(open opener) *cobra.Command {
	var styleID string
	var highRes bool
	cmd := &cobra.Command{
		Use:     "image [prompt...]",
		Short:   "Render an image",
		Example: `  zenith image --style watercolor "a lighthouse at dawn"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			item, err := a.image.Generate(cmd.Context(), strings.Join(args, " "), styleID, highRes)
			if err != nil {
				return err
			}
			return printResult(cmd, item, func(w io.Writer) {
				fmt.Fprintln(w, item.ImageURL)
			})
		},
	}
	cmd.Flags().StringVar(&styleID, "style", studio.DefaultImageStyle, "style tag (see 'zenith image styles')")
	cmd.Flags().BoolVar(&highRes, "hd", false, "use the high resolution model")

	cmd.AddCommand(&cobra.Command{
		Use:   "styles",
		Short: "List image style tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			styles := studio.ImageStyles()
			return printResult(cmd, styles, func(w io.Writer) {
				for _, s := range styles {
					fmt.Fprintf(w, "%-15s %s\n", s.ID, s.Label)
				}
			})
		},
	})
	return cmd
}

func newVideoCmd(open opener) *cobra.Command {
	var (
		req       types.VideoRequest
		presetID  string
		audioPath string
		noWait    bool
	)
	cmd := &cobra.Command{
		Use:   "video [prompt...]",
		Short: "Queue a video render and wait for it",
		Example: `  zenith video --preset tiktok "a paper boat in the rain"
  zenith video --audio track.mp3 --style Animated`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Prompt = strings.Join(args, " ")
			if presetID != "" {
				var err error
				if req, err = studio.ApplyPreset(req, presetID); err != nil {
					return err
				}
			}

			var audio *studio.AudioInput
			if audioPath != "" {
				data, err := os.ReadFile(audioPath)
				if err != nil {
					return err
				}
				audio = &studio.AudioInput{Data: data, MIMEType: audioMIMEType(audioPath)}
			}

			a, err := open(cmd)
			if err != nil {
				return err
			}
			id, err := a.video.Enqueue(req, audio)
			if err != nil {
				return err
			}
			if noWait {
				task, _ := a.video.Task(id)
				return printResult(cmd, task, func(w io.Writer) {
					fmt.Fprintf(w, "%s %s\n", task.ID, task.Status)
				})
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "rendering %s\n", id)
			stop := reportProgress(cmd, a.video, id)
			task, err := a.video.Wait(cmd.Context(), id)
			stop()
			if err != nil {
				return err
			}
			if task.Status == studio.TaskFailed {
				return fmt.Errorf("render %s failed: %s", task.ID, task.Error)
			}
			return printResult(cmd, task, func(w io.Writer) {
				fmt.Fprintln(w, task.VideoURL)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&presetID, "preset", "", "platform preset: youtube, instagram, tiktok")
	f.StringVar((*string)(&req.AspectRatio), "aspect", "", "aspect ratio: 16:9 or 9:16")
	f.StringVar((*string)(&req.Resolution), "resolution", "", "resolution: 720p or 1080p")
	f.StringVar(&req.Style, "style", "", "style: "+strings.Join(studio.VideoStyles, ", "))
	f.IntVar(&req.DurationSeconds, "duration", 0, "duration in seconds")
	f.StringVar(&audioPath, "audio", "", "soundtrack that drives the visual prompt")
	f.BoolVar(&noWait, "no-wait", false, "print the queued task and exit")
	return cmd
}

func audioMIMEType(path string) string {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "audio/") {
		return t
	}
	return "audio/mpeg"
}

// reportProgress prints render progress changes until the returned stop
// function is called.
func reportProgress(cmd *cobra.Command, v videoStudio, id string) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		last := -1
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				task, ok := v.Task(id)
				if ok && task.Progress != last {
					last = task.Progress
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s %d%%\n", task.Status, task.Progress)
				}
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func newOrchestrateCmd(open opener) *cobra.Command {
	var useSearch bool
	cmd := &cobra.Command{
		Use:     "orchestrate [goal...]",
		Short:   "Run the narrative, visual and temporal stages and save a campaign",
		Example: `  zenith orchestrate --uid u1 "launch a reusable water bottle"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			uid, _ := cmd.Flags().GetString("uid")
			res, err := a.orchestrator.RunWithProgress(cmd.Context(), uid, strings.Join(args, " "), useSearch, func(s studio.Stage) {
				fmt.Fprintf(cmd.ErrOrStderr(), "stage: %s\n", s)
			})
			if err != nil {
				return err
			}
			return printResult(cmd, res, func(w io.Writer) {
				fmt.Fprintf(w, "%s\n\nimage: %s\nvideo: %s\n", res.Text, res.ImageURL, res.VideoURL)
				if res.CampaignID != "" {
					fmt.Fprintf(w, "campaign: %s\n", res.CampaignID)
				}
			})
		},
	}
	cmd.Flags().BoolVar(&useSearch, "search", false, "ground the narrative with web search")
	return cmd
}

func newHistoryCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "history [query...]",
		Short: "List or search everything the studios produced",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			uid, _ := cmd.Flags().GetString("uid")
			var items []types.HistoryItem
			if len(args) == 0 {
				items, err = a.history.All(cmd.Context(), uid)
			} else {
				items, err = a.history.Search(cmd.Context(), uid, strings.Join(args, " "))
			}
			if err != nil {
				return err
			}
			return printResult(cmd, items, func(w io.Writer) {
				for _, it := range items {
					fmt.Fprintf(w, "%s  %-12s %s\n", time.UnixMilli(it.Timestamp).Format(time.DateTime), it.Tab, oneLine(it.Prompt, 72))
				}
			})
		},
	}
}

func newCampaignsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "campaigns",
		Short: "List saved campaigns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := open(cmd)
			if err != nil {
				return err
			}
			uid, _ := cmd.Flags().GetString("uid")
			list, err := a.campaigns.List(cmd.Context(), uid)
			if err != nil {
				return err
			}
			return printResult(cmd, list, func(w io.Writer) {
				for _, c := range list {
					fmt.Fprintf(w, "%s  %s\n", c.CreatedAt.Format(time.DateTime), oneLine(c.Goal, 72))
				}
			})
		},
	}
}

func printResult(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	w := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}
