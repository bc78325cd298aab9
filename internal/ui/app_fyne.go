//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fstorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"retouchdesk/internal/api"
	"retouchdesk/internal/config"
	"retouchdesk/internal/crash"
	"retouchdesk/internal/domain"
	"retouchdesk/internal/export"
	"retouchdesk/internal/history"
	applog "retouchdesk/internal/log"
	"retouchdesk/internal/preview"
	"retouchdesk/internal/session"
	"retouchdesk/internal/telemetry"
)

const thumbBound = 160

// Run starts the Fyne-based desktop client.
func Run() error {
	applog.Init(applog.FromEnv())
	l := applog.WithComponent("ui")
	l.Info("starting UI")

	defer crash.Recover()

	cfg, err := config.Load()
	if err != nil {
		l.Warn("config load failed, using defaults", slog.Any("err", err))
		cfg = config.Defaults()
	}
	if cfg.General.TelemetryOptIn {
		tcfg := telemetry.FromEnv()
		tcfg.OptIn = true
		telemetry.NewDefault(tcfg)
	}

	histPath, err := config.HistoryPath()
	if err != nil {
		return fmt.Errorf("resolve history path: %w", err)
	}
	store, err := history.Open(histPath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()

	cacheDir, err := config.PreviewCacheDir()
	if err != nil {
		return fmt.Errorf("resolve preview cache: %w", err)
	}
	thumbs, err := preview.NewCache(cacheDir, cfg.Cache.MaxStorageMB, time.Duration(cfg.Cache.MaxAgeHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("open preview cache: %w", err)
	}
	go func() {
		if err := thumbs.Sweep(); err != nil {
			l.Warn("startup cache sweep failed", slog.Any("err", err))
		}
	}()

	tokens := session.Keyring{}
	tabs := NewTabs()

	fyneApp := app.NewWithID("retouchdesk")
	w := fyneApp.NewWindow("Retouch Desk")
	prefs := fyneApp.Preferences()
	winW := prefs.IntWithFallback("window.width", 1100)
	winH := prefs.IntWithFallback("window.height", 760)
	if winW < 800 {
		winW = 800
	}
	if winH < 560 {
		winH = 560
	}
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))

	status := widget.NewLabel("Ready")
	userLabel := widget.NewLabel("")

	// forward declarations so the client callback and the gate can reach them
	var showGate func()
	var fetchPosts func()
	var endSession func()

	client := api.New(cfg.Backend.BaseURL, tokens, api.Options{
		Timeout:     time.Duration(cfg.Backend.TimeoutMs) * time.Millisecond,
		TLSInsecure: cfg.Backend.TLSInsecure,
		OnSessionExpired: func() {
			fyne.Do(func() {
				endSession()
				status.SetText("Session expired. Please sign in again.")
			})
		},
	})

	// ---- image viewer ------------------------------------------------------

	openViewer := func(src string) {
		target, ok := ViewerSource(src)
		if !ok {
			l.Info("viewer rejected source", slog.String("src", src))
			return
		}
		go func() {
			data, err := client.FetchFile(context.Background(), target)
			fyne.Do(func() {
				if err != nil {
					l.Error("viewer fetch failed", slog.String("src", target), slog.Any("err", err))
					dialog.ShowError(err, w)
					return
				}
				img := canvas.NewImageFromResource(fyne.NewStaticResource(filepath.Base(target), data))
				img.FillMode = canvas.ImageFillContain
				img.SetMinSize(fyne.NewSize(720, 540))
				dialog.ShowCustom("", "Close", img, w)
			})
		}()
	}

	// loadThumb asynchronously fills a canvas.Image from the preview cache.
	loadThumb := func(img *canvas.Image, src string) {
		go func() {
			data, err := thumbs.GetOrCreate(context.Background(), src, thumbBound, thumbBound, func(ctx context.Context) ([]byte, error) {
				return client.FetchFile(ctx, src)
			})
			if err != nil {
				l.Debug("thumbnail load failed", slog.String("src", src), slog.Any("err", err))
				return
			}
			fyne.Do(func() {
				img.Resource = fyne.NewStaticResource(filepath.Base(src), data)
				img.Refresh()
			})
		}()
	}

	saveCopy := func(src string) {
		d := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
			if err != nil || wc == nil {
				return
			}
			go func() {
				data, ferr := client.FetchFile(context.Background(), src)
				fyne.Do(func() {
					defer wc.Close()
					if ferr == nil {
						_, ferr = wc.Write(data)
					}
					if ferr != nil {
						l.Error("saving copy failed", slog.Any("err", ferr))
						dialog.ShowError(ferr, w)
						return
					}
					status.SetText("Image saved.")
				})
			}()
		}, w)
		d.SetFileName(filepath.Base(src))
		d.Show()
	}

	// ---- editor tab --------------------------------------------------------

	editorBox := container.NewVBox(widget.NewLabel("Analyze a post or upload an image to start editing."))
	var appTabs *container.AppTabs

	showEditor := func(st EditorState) {
		original := canvas.NewImageFromResource(nil)
		original.FillMode = canvas.ImageFillContain
		original.SetMinSize(fyne.NewSize(320, 240))
		loadThumb(original, st.ImageURL)

		prompt := widget.NewMultiLineEntry()
		prompt.SetText(st.Analysis)
		prompt.Wrapping = fyne.TextWrapWord

		resultBox := container.NewVBox()
		progress := widget.NewProgressBarInfinite()
		progress.Hide()

		var generateBtn *widget.Button
		generateBtn = widget.NewButton("Generate Edit", func() {
			text, err := ValidatePrompt(prompt.Text)
			if err != nil {
				dialog.ShowInformation("Nothing to do", err.Error(), w)
				return
			}
			generateBtn.Disable()
			progress.Show()
			status.SetText("Generating edit... this can take up to 30 seconds.")
			started := time.Now()
			go func(imageURL, text string) {
				res, err := client.Edit(context.Background(), imageURL, text)
				var appendErr error
				if err == nil {
					appendErr = store.Append(context.Background(), domain.EditRecord{
						OriginalImageURL: imageURL,
						EditedImageURL:   res.EditedImagePath,
						PostTitle:        st.Title,
						Prompt:           text,
					})
				}
				fyne.Do(func() {
					generateBtn.Enable()
					progress.Hide()
					resultBox.Objects = nil
					if err != nil {
						l.Error("edit failed", slog.Any("err", err))
						status.SetText("Edit failed.")
						msg := widget.NewLabel("Edit failed: " + api.UserMessage(err))
						msg.Wrapping = fyne.TextWrapWord
						resultBox.Add(msg)
						resultBox.Refresh()
						return
					}
					if appendErr != nil {
						l.Error("recording edit failed", slog.Any("err", appendErr))
					}
					telemetry.Event("edit_generated", map[string]any{"duration_ms": time.Since(started).Milliseconds()})
					status.SetText("Edit generated.")

					edited := canvas.NewImageFromResource(nil)
					edited.FillMode = canvas.ImageFillContain
					edited.SetMinSize(fyne.NewSize(320, 240))
					loadThumb(edited, res.EditedImagePath)
					before := container.NewVBox(widget.NewLabel("Original"), original)
					after := container.NewVBox(widget.NewLabel("Edited"), edited)
					resultBox.Add(container.NewGridWithColumns(2, before, after))
					editedURL := client.ResolveURL(res.EditedImagePath)
					resultBox.Add(container.NewHBox(
						widget.NewButton("View Full Size", func() { openViewer(editedURL) }),
						widget.NewButton("Download a Copy", func() { saveCopy(editedURL) }),
					))
					resultBox.Refresh()
				})
			}(st.ImageURL, text)
		})

		editorBox.Objects = []fyne.CanvasObject{
			widget.NewLabelWithStyle(st.Title, fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
			original,
			widget.NewLabel("Edit instruction:"),
			prompt,
			container.NewHBox(generateBtn, progress),
			widget.NewSeparator(),
			resultBox,
		}
		editorBox.Refresh()
		appTabs.SelectIndex(int(TabEditor))
	}

	// ---- queue tab ---------------------------------------------------------

	queueBox := container.NewVBox(widget.NewLabel("Sign in to load posts."))

	renderQueue := func(view QueueView) {
		queueBox.Objects = nil
		switch view.Empty {
		case QueueEmptyNoPosts:
			queueBox.Add(widget.NewLabel(MsgQueueNoPosts))
		case QueueEmptyNoDirectImages:
			queueBox.Add(widget.NewLabel(MsgQueueNoDirectImages))
		default:
			for _, item := range view.Items {
				post := item.Post
				thumb := canvas.NewImageFromResource(nil)
				thumb.FillMode = canvas.ImageFillContain
				thumb.SetMinSize(fyne.NewSize(thumbBound, thumbBound))
				loadThumb(thumb, item.PreviewURL)

				title := widget.NewLabelWithStyle(post.Title, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
				title.Wrapping = fyne.TextWrapWord
				byline := widget.NewLabel(fmt.Sprintf("u/%s · %d points · %d comments", post.Author, post.Score, post.NumComments))

				var analyzeBtn *widget.Button
				analyzeBtn = widget.NewButton("Analyze", func() {
					analyzeBtn.Disable()
					analyzeBtn.SetText("Analyzing...")
					go func(p domain.Post) {
						analysis, err := client.Analyze(context.Background(), p.Title, p.Description)
						fyne.Do(func() {
							analyzeBtn.Enable()
							analyzeBtn.SetText("Analyze")
							if err != nil {
								l.Error("analyze failed", slog.String("post", p.ID), slog.Any("err", err))
								dialog.ShowError(fmt.Errorf("analysis failed: %s", api.UserMessage(err)), w)
								return
							}
							telemetry.Event("post_analyzed", nil)
							showEditor(EditorFromPost(p, analysis))
						})
					}(post)
				})
				viewBtn := widget.NewButton("View", func() { openViewer(client.ResolveURL(post.ImageURL)) })

				card := container.NewBorder(nil, widget.NewSeparator(), thumb, nil,
					container.NewVBox(title, byline, container.NewHBox(analyzeBtn, viewBtn)))
				queueBox.Add(card)
			}
		}
		queueBox.Refresh()
	}

	fetchPosts = func() {
		if GateVisible(tokens) {
			return
		}
		status.SetText("Loading posts...")
		go func() {
			posts, err := client.Posts(context.Background())
			fyne.Do(func() {
				if err != nil {
					l.Error("fetching posts failed", slog.Any("err", err))
					status.SetText("Loading posts failed.")
					queueBox.Objects = []fyne.CanvasObject{widget.NewLabel("Could not load posts: " + api.UserMessage(err))}
					queueBox.Refresh()
					return
				}
				status.SetText(fmt.Sprintf("%d posts loaded.", len(posts)))
				renderQueue(BuildQueue(posts))
			})
		}()
	}

	uploadImage := func() {
		d := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
			if err != nil || rc == nil {
				return
			}
			name := filepath.Base(rc.URI().Path())
			status.SetText("Uploading " + name + "...")
			go func() {
				defer rc.Close()
				path, err := client.Upload(context.Background(), name, rc)
				fyne.Do(func() {
					if err != nil {
						l.Error("upload failed", slog.Any("err", err))
						status.SetText("Upload failed.")
						dialog.ShowError(fmt.Errorf("upload failed: %s", api.UserMessage(err)), w)
						return
					}
					status.SetText("Upload complete.")
					showEditor(EditorFromUpload(name, path))
				})
			}()
		}, w)
		d.SetFilter(fstorage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".gif", ".webp"}))
		d.Show()
	}

	// ---- history tab -------------------------------------------------------

	historyBox := container.NewVBox()
	clearBtn := widget.NewButton("Clear History", nil)
	exportBtn := widget.NewButton("Export PDF", nil)

	var refreshHistory func()
	refreshHistory = func() {
		records, err := store.List(context.Background())
		historyBox.Objects = nil
		if err != nil {
			l.Error("reading history failed", slog.Any("err", err))
			historyBox.Add(widget.NewLabel("Could not read history."))
			historyBox.Refresh()
			return
		}
		if len(records) == 0 {
			clearBtn.Disable()
			exportBtn.Disable()
			historyBox.Add(widget.NewLabel("No edits yet. Generated edits appear here."))
			historyBox.Refresh()
			return
		}
		clearBtn.Enable()
		exportBtn.Enable()
		for _, rec := range records {
			origThumb := canvas.NewImageFromResource(nil)
			origThumb.FillMode = canvas.ImageFillContain
			origThumb.SetMinSize(fyne.NewSize(96, 96))
			loadThumb(origThumb, rec.OriginalImageURL)
			editThumb := canvas.NewImageFromResource(nil)
			editThumb.FillMode = canvas.ImageFillContain
			editThumb.SetMinSize(fyne.NewSize(96, 96))
			loadThumb(editThumb, rec.EditedImageURL)

			title := widget.NewLabelWithStyle(rec.PostTitle, fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
			promptLabel := widget.NewLabel("“" + rec.Prompt + "”")
			promptLabel.Wrapping = fyne.TextWrapWord
			when := widget.NewLabel(rec.Timestamp.Local().Format("02 Jan 2006 15:04"))
			editedURL := client.ResolveURL(rec.EditedImageURL)
			actions := container.NewHBox(
				widget.NewButton("View Edited", func() { openViewer(editedURL) }),
				widget.NewButton("Download", func() { saveCopy(editedURL) }),
			)
			card := container.NewBorder(nil, widget.NewSeparator(),
				container.NewHBox(origThumb, editThumb), nil,
				container.NewVBox(title, promptLabel, when, actions))
			historyBox.Add(card)
		}
		historyBox.Refresh()
	}

	clearBtn.OnTapped = func() {
		dialog.ShowConfirm("Clear History", "Delete all recorded edits? This cannot be undone.", func(ok bool) {
			if !ok {
				return
			}
			if err := store.Clear(context.Background()); err != nil {
				l.Error("clearing history failed", slog.Any("err", err))
				dialog.ShowError(err, w)
				return
			}
			status.SetText("History cleared.")
			refreshHistory()
		}, w)
	}

	exportBtn.OnTapped = func() {
		d := dialog.NewFileSave(func(wc fyne.URIWriteCloser, err error) {
			if err != nil || wc == nil {
				return
			}
			out := wc.URI().Path()
			_ = wc.Close()
			status.SetText("Exporting history...")
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()
				records, err := store.List(ctx)
				if err == nil {
					err = export.ExportHistoryPDF(ctx, records, out, export.PDFOptions{
						FetchImage: func(ctx context.Context, u string) ([]byte, error) {
							return client.FetchFile(ctx, client.ResolveURL(u))
						},
					})
				}
				fyne.Do(func() {
					if err != nil {
						l.Error("history export failed", slog.Any("err", err))
						dialog.ShowError(err, w)
						status.SetText("Export failed.")
						return
					}
					status.SetText("History exported.")
				})
			}()
		}, w)
		d.SetFileName("retouchdesk-history.pdf")
		d.Show()
	}

	// ---- auth gate ---------------------------------------------------------

	var gate *widget.PopUp

	enterApp := func() {
		who, ok := IdentityOrLogout(tokens)
		if !ok {
			showGate()
			return
		}
		if gate != nil {
			gate.Hide()
		}
		userLabel.SetText("Signed in as " + who)
		fetchPosts()
	}

	showGate = func() {
		if gate != nil {
			gate.Show()
			return
		}
		email := widget.NewEntry()
		email.SetPlaceHolder("email")
		password := widget.NewPasswordEntry()
		password.SetPlaceHolder("password")
		gateStatus := widget.NewLabel("")
		gateStatus.Wrapping = fyne.TextWrapWord

		regEmail := widget.NewEntry()
		regEmail.SetPlaceHolder("email")
		regPassword := widget.NewPasswordEntry()
		regPassword.SetPlaceHolder("password")
		referral := widget.NewEntry()
		referral.SetPlaceHolder("referral code (optional)")

		var gateTabs *container.AppTabs

		var loginBtn *widget.Button
		loginBtn = widget.NewButton("Sign In", func() {
			loginBtn.Disable()
			gateStatus.SetText("Signing in...")
			go func(mail, pass string) {
				tok, err := client.Login(context.Background(), mail, pass)
				var setErr error
				if err == nil {
					setErr = tokens.Set(tok)
				}
				fyne.Do(func() {
					loginBtn.Enable()
					if err != nil {
						l.Info("login failed", slog.Any("err", err))
						gateStatus.SetText("Login failed: " + api.UserMessage(err))
						return
					}
					if setErr != nil {
						l.Error("storing token failed", slog.Any("err", setErr))
						gateStatus.SetText("Could not store the session token.")
						return
					}
					gateStatus.SetText("")
					password.SetText("")
					enterApp()
				})
			}(email.Text, password.Text)
		})

		var registerBtn *widget.Button
		registerBtn = widget.NewButton("Create Account", func() {
			registerBtn.Disable()
			gateStatus.SetText("Creating account...")
			go func(mail, pass, code string) {
				err := client.Register(context.Background(), mail, pass, code)
				fyne.Do(func() {
					registerBtn.Enable()
					if err != nil {
						l.Info("registration failed", slog.Any("err", err))
						gateStatus.SetText("Registration failed: " + api.UserMessage(err))
						return
					}
					// back to the login form; no auto-login
					email.SetText(mail)
					gateStatus.SetText("Account created. Please sign in.")
					gateTabs.SelectIndex(0)
				})
			}(regEmail.Text, regPassword.Text, referral.Text)
		})

		loginForm := container.NewVBox(email, password, loginBtn)
		registerForm := container.NewVBox(regEmail, regPassword, referral, registerBtn)
		gateTabs = container.NewAppTabs(
			container.NewTabItem("Sign In", loginForm),
			container.NewTabItem("Register", registerForm),
		)
		content := container.NewVBox(
			widget.NewLabelWithStyle("Retouch Desk", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
			gateTabs,
			gateStatus,
		)
		gate = widget.NewModalPopUp(container.NewPadded(content), w.Canvas())
		gate.Resize(fyne.NewSize(360, 300))
		gate.Show()
	}

	endSession = func() {
		returnTo := EndSession(tokens)
		userLabel.SetText("")
		queueBox.Objects = []fyne.CanvasObject{widget.NewLabel("Sign in to load posts.")}
		queueBox.Refresh()
		editorBox.Objects = []fyne.CanvasObject{widget.NewLabel("Analyze a post or upload an image to start editing.")}
		editorBox.Refresh()
		appTabs.SelectIndex(int(returnTo))
		showGate()
	}

	// ---- shell -------------------------------------------------------------

	appTabs = container.NewAppTabs(
		container.NewTabItem("Queue", container.NewVScroll(queueBox)),
		container.NewTabItem("Editor", container.NewVScroll(editorBox)),
		container.NewTabItem("History", container.NewVScroll(historyBox)),
	)
	appTabs.OnSelected = func(ti *container.TabItem) {
		var tab Tab
		switch ti.Text {
		case "Editor":
			tab = TabEditor
		case "History":
			tab = TabHistory
		default:
			tab = TabQueue
		}
		if tabs.Select(tab) {
			refreshHistory()
		}
	}

	toolbar := container.NewHBox(
		widget.NewButton("Refresh", func() { fetchPosts() }),
		widget.NewButton("Upload Image", uploadImage),
		clearBtn,
		exportBtn,
		userLabel,
		widget.NewButton("Log Out", func() { endSession() }),
	)
	w.SetContent(container.NewBorder(toolbar, status, nil, nil, appTabs))

	w.SetOnClosed(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		telemetry.Event("app_closed", nil)
	})

	refreshHistory()
	if GateVisible(tokens) {
		showGate()
	} else {
		enterApp()
	}
	telemetry.Event("app_started", nil)

	w.ShowAndRun()
	return nil
}
