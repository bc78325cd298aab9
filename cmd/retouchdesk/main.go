/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"retouchdesk/internal/api"
	"retouchdesk/internal/config"
	"retouchdesk/internal/crash"
	"retouchdesk/internal/domain"
	"retouchdesk/internal/export"
	"retouchdesk/internal/history"
	applog "retouchdesk/internal/log"
	"retouchdesk/internal/session"
	"retouchdesk/internal/ui"
	"retouchdesk/internal/version"
)

func usage() {
	fmt.Println("Retouch Desk — desktop client for the retouch backend")
	fmt.Printf("Version: %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  retouchdesk version|-v|--version            Show version")
	fmt.Println("  retouchdesk login <email> <password>         Sign in and store the session token")
	fmt.Println("  retouchdesk logout                           Discard the stored session token")
	fmt.Println("  retouchdesk register <email> <password> [referral]   Create an account")
	fmt.Println("  retouchdesk posts                            List retouch-request posts")
	fmt.Println("  retouchdesk analyze <title> [description]    Ask for an edit instruction")
	fmt.Println("  retouchdesk upload <file>                    Upload an image, print its server path")
	fmt.Println("  retouchdesk edit <imageUrl> <prompt...>      Generate an edit and record it")
	fmt.Println("  retouchdesk history [clear|export <out.pdf>] Show or manage the local edit history")
	fmt.Println("  retouchdesk ui                               Launch the desktop UI (build with -tags fyne)")
}

// newClient assembles the API client from config and the OS keyring.
func newClient(l *slog.Logger) (*api.Client, session.Store) {
	cfg, err := config.Load()
	if err != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", err))
		cfg = config.Defaults()
	}
	tokens := session.Keyring{}
	client := api.New(cfg.Backend.BaseURL, tokens, api.Options{
		Timeout:     time.Duration(cfg.Backend.TimeoutMs) * time.Millisecond,
		TLSInsecure: cfg.Backend.TLSInsecure,
		OnSessionExpired: func() {
			fmt.Println("Session expired. Sign in again with: retouchdesk login <email> <password>")
		},
	})
	return client, tokens
}

func openHistory() (*history.Store, error) {
	path, err := config.HistoryPath()
	if err != nil {
		return nil, err
	}
	return history.Open(path)
}

func fail(l *slog.Logger, msg string, err error) {
	l.Error(msg, slog.Any("err", err))
	fmt.Println("Error:", err)
	os.Exit(1)
}

func main() {
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("cli")
	defer crash.Recover()

	args := os.Args
	l.Debug("start", slog.Int("args", len(args)))
	ctx := context.Background()
	if len(args) > 1 {
		switch args[1] {
		case "version", "--version", "-v":
			fmt.Println("Retouch Desk")
			fmt.Println(version.String())
			return
		case "login":
			if len(args) < 4 {
				fmt.Println("login requires <email> and <password>")
				usage()
				os.Exit(2)
			}
			client, tokens := newClient(l)
			tok, err := client.Login(ctx, args[2], args[3])
			if err != nil {
				fail(l, "login failed", err)
			}
			if err := tokens.Set(tok); err != nil {
				fail(l, "storing token failed", err)
			}
			if who, err := session.Identity(tok); err == nil {
				fmt.Println("Signed in as", who)
			} else {
				fmt.Println("Signed in.")
			}
			return
		case "logout":
			_, tokens := newClient(l)
			if err := tokens.Clear(); err != nil {
				fail(l, "logout failed", err)
			}
			fmt.Println("Signed out.")
			return
		case "register":
			if len(args) < 4 {
				fmt.Println("register requires <email> and <password>")
				usage()
				os.Exit(2)
			}
			referral := ""
			if len(args) > 4 {
				referral = args[4]
			}
			client, _ := newClient(l)
			if err := client.Register(ctx, args[2], args[3], referral); err != nil {
				fail(l, "registration failed", err)
			}
			fmt.Println("Account created. Sign in with: retouchdesk login", args[2], "<password>")
			return
		case "posts":
			client, _ := newClient(l)
			posts, err := client.Posts(ctx)
			if err != nil {
				fail(l, "fetching posts failed", err)
			}
			view := ui.BuildQueue(posts)
			switch view.Empty {
			case ui.QueueEmptyNoPosts:
				fmt.Println(ui.MsgQueueNoPosts)
			case ui.QueueEmptyNoDirectImages:
				fmt.Println(ui.MsgQueueNoDirectImages)
			default:
				for _, item := range view.Items {
					p := item.Post
					fmt.Printf("%s  %s\n    by u/%s · %d points · %s\n", p.ID, p.Title, p.Author, p.Score, p.ImageURL)
				}
			}
			return
		case "analyze":
			if len(args) < 3 {
				fmt.Println("analyze requires <title>")
				usage()
				os.Exit(2)
			}
			description := ""
			if len(args) > 3 {
				description = strings.Join(args[3:], " ")
			}
			client, _ := newClient(l)
			analysis, err := client.Analyze(ctx, args[2], description)
			if err != nil {
				fail(l, "analyze failed", err)
			}
			fmt.Println(analysis)
			return
		case "upload":
			if len(args) < 3 {
				fmt.Println("upload requires <file>")
				usage()
				os.Exit(2)
			}
			f, err := os.Open(args[2])
			if err != nil {
				fail(l, "opening file failed", err)
			}
			client, _ := newClient(l)
			path, err := client.Upload(ctx, filepath.Base(args[2]), f)
			_ = f.Close()
			if err != nil {
				fail(l, "upload failed", err)
			}
			fmt.Println("Uploaded to", client.ResolveURL(path))
			return
		case "edit":
			if len(args) < 4 {
				fmt.Println("edit requires <imageUrl> and <prompt>")
				usage()
				os.Exit(2)
			}
			imageURL := args[2]
			prompt, err := ui.ValidatePrompt(strings.Join(args[3:], " "))
			if err != nil {
				fmt.Println("Error:", err)
				os.Exit(2)
			}
			client, _ := newClient(l)
			res, err := client.Edit(ctx, imageURL, prompt)
			if err != nil {
				fail(l, "edit failed", err)
			}
			store, err := openHistory()
			if err != nil {
				fail(l, "opening history failed", err)
			}
			defer store.Close()
			rec := domain.EditRecord{OriginalImageURL: imageURL, EditedImageURL: res.EditedImagePath, Prompt: prompt}
			if err := store.Append(ctx, rec); err != nil {
				l.Warn("recording edit failed", slog.Any("err", err))
			}
			fmt.Println("Edited image:", client.ResolveURL(res.EditedImagePath))
			return
		case "history":
			store, err := openHistory()
			if err != nil {
				fail(l, "opening history failed", err)
			}
			defer store.Close()
			if len(args) > 2 {
				switch args[2] {
				case "clear":
					if err := store.Clear(ctx); err != nil {
						fail(l, "clearing history failed", err)
					}
					fmt.Println("History cleared.")
					return
				case "export":
					if len(args) < 4 {
						fmt.Println("history export requires <out.pdf>")
						os.Exit(2)
					}
					records, err := store.List(ctx)
					if err != nil {
						fail(l, "reading history failed", err)
					}
					client, _ := newClient(l)
					opt := export.PDFOptions{FetchImage: func(ctx context.Context, u string) ([]byte, error) {
						return client.FetchFile(ctx, client.ResolveURL(u))
					}}
					if err := export.ExportHistoryPDF(ctx, records, args[3], opt); err != nil {
						fail(l, "export failed", err)
					}
					fmt.Println("Exported", len(records), "entries to", args[3])
					return
				default:
					fmt.Println("unknown history subcommand:", args[2])
					os.Exit(2)
				}
			}
			records, err := store.List(ctx)
			if err != nil {
				fail(l, "reading history failed", err)
			}
			if len(records) == 0 {
				fmt.Println("No edits recorded yet.")
				return
			}
			for _, rec := range records {
				fmt.Printf("%s  %s\n    “%s”\n    %s\n", rec.Timestamp.Local().Format("2006-01-02 15:04"), rec.PostTitle, rec.Prompt, rec.EditedImageURL)
			}
			return
		case "ui":
			if err := ui.Run(); err != nil {
				fmt.Println("Error:", err)
				os.Exit(1)
			}
			return
		}
	}

	usage()
}
