// PuPu chat store shell - an interactive front end for the persistent chat store.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/haoxiang-xu/PuPu-sub000/internal/chatstore"
	"github.com/haoxiang-xu/PuPu-sub000/internal/config"
	"github.com/haoxiang-xu/PuPu-sub000/internal/model"
	"github.com/haoxiang-xu/PuPu-sub000/internal/storage"
	"github.com/haoxiang-xu/PuPu-sub000/internal/util"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

const sourceTag = "shell"

var commandNames = []string{
	"help", "tree", "new", "folder", "open", "rename", "delete", "dup",
	"say", "stream", "messages", "draft", "model", "thread", "export",
	"info", "quit", "exit",
}

func main() {
	cfgPath := ""
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-config", "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "missing argument for -config")
				os.Exit(2)
			}
			i++
			cfgPath = args[i]
		case "-version", "--version":
			fmt.Printf("pupu %s (%s)\n", Version, GitCommit)
			return
		case "-h", "--help", "help":
			printUsage()
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown argument %q\n", args[i])
			os.Exit(2)
		}
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	slot, cleanup, err := openSlot(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	svc := chatstore.New(slot, chatstore.WithLimits(chatstore.Limits{
		MaxTotalBytes:     cfg.Eviction.MaxTotalBytes,
		TargetTotalBytes:  cfg.Eviction.TargetTotalBytes,
		MaxActiveMessages: cfg.Eviction.MaxActiveMessages,
	}))

	if cfg.Watcher.Enabled && cfg.Storage.Backend == "file" {
		path, _ := cfg.StoragePath()
		if w, werr := chatstore.WatchSlotFile(svc, path, cfg.WatchDebounce()); werr == nil {
			defer w.Close()
		} else {
			fmt.Fprintf(os.Stderr, "watcher disabled: %v\n", werr)
		}
	}

	unsubscribe := svc.Subscribe(func(ev chatstore.Event) {
		if ev.Source == "watcher" {
			fmt.Println("\n(store changed externally, reloaded)")
		}
	})
	defer unsubscribe()

	snap := svc.Bootstrap(sourceTag)
	fmt.Printf("pupu %s — %d chat(s), active: %s\n",
		Version, len(snap.Store.ChatsByID), snap.ActiveChat.Title)
	fmt.Println(`type "help" for commands`)

	sh := &shell{
		svc:       svc,
		cfg:       cfg,
		coalescer: chatstore.NewCoalescer(cfg.CoalesceInterval()),
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		sh.runInteractive()
	} else {
		sh.runPiped(os.Stdin)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// openSlot builds the configured slot, creating parent directories for
// file-backed storage.
func openSlot(cfg *config.Config) (storage.Slot, func(), error) {
	path, err := cfg.StoragePath()
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	if cfg.Storage.Backend == "sqlite" {
		slot, err := storage.NewSQLiteSlot(path, storage.DefaultKey, model.SchemaVersion)
		if err != nil {
			return nil, nil, err
		}
		return slot, func() { slot.Close() }, nil
	}
	return storage.NewFileSlot(path), func() {}, nil
}

// =============================================================================
// SHELL
// =============================================================================

type shell struct {
	svc       *chatstore.Service
	cfg       *config.Config
	coalescer *chatstore.Coalescer

	// rows maps the last printed tree row numbers to node ids, so
	// commands can say "open 3" instead of pasting node ids.
	rows []string
}

func (s *shell) runInteractive() {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var out []string
		for _, name := range commandNames {
			if strings.HasPrefix(name, prefix) {
				out = append(out, name)
			}
		}
		return out
	})

	historyPath := historyFile()
	if historyPath != "" {
		if f, err := os.Open(historyPath); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	defer func() {
		if historyPath == "" {
			return
		}
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		input, err := line.Prompt("pupu> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			fmt.Println("bye")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "read error: %v\n", err)
			return
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)
		if !s.dispatch(input) {
			return
		}
	}
}

func (s *shell) runPiped(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if !s.dispatch(input) {
			return
		}
	}
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".pupu", "history")
}

// dispatch runs one command line; false means quit.
func (s *shell) dispatch(input string) bool {
	cmd, rest := splitCommand(input)

	switch cmd {
	case "quit", "exit":
		fmt.Println("bye")
		return false
	case "help":
		printUsage()
	case "tree", "ls":
		s.printTree()
	case "new":
		st := s.svc.CreateChatInSelectedContext("", rest, sourceTag)
		fmt.Printf("created chat %q\n", st.ChatsByID[st.ActiveChatID].Title)
	case "folder":
		if rest == "" {
			fmt.Println("usage: folder <label>")
			break
		}
		s.svc.CreateFolder("", rest, sourceTag)
		s.printTree()
	case "open":
		s.cmdOpen(rest)
	case "rename":
		s.cmdRename(rest)
	case "delete":
		if id, ok := s.resolveNode(rest); ok {
			s.svc.DeleteTreeNodeCascade(id, sourceTag)
			s.printTree()
		}
	case "dup":
		if id, ok := s.resolveNode(rest); ok {
			s.svc.DuplicateTreeNodeSubtree(id, sourceTag)
			s.printTree()
		}
	case "say":
		s.cmdSay(rest)
	case "stream":
		s.cmdStream(rest)
	case "messages":
		s.printMessages()
	case "draft":
		s.cmdDraft(rest)
	case "model":
		s.cmdModel(rest)
	case "thread":
		s.cmdThread(rest)
	case "export":
		s.cmdExport(rest)
	case "info":
		s.printInfo()
	default:
		fmt.Printf("unknown command %q (try \"help\")\n", cmd)
	}
	return true
}

func splitCommand(input string) (string, string) {
	parts := strings.SplitN(input, " ", 2)
	cmd := strings.ToLower(parts[0])
	rest := ""
	if len(parts) == 2 {
		rest = strings.TrimSpace(parts[1])
	}
	return cmd, rest
}

// =============================================================================
// COMMANDS
// =============================================================================

func (s *shell) cmdOpen(arg string) {
	id, ok := s.resolveNode(arg)
	if !ok {
		return
	}
	st := s.svc.SelectTreeNode(id, sourceTag)
	node := st.Tree.NodesByID[id]
	if node == nil || node.ChatID != st.ActiveChatID {
		fmt.Println("folders cannot be opened; pick a chat row")
		return
	}
	fmt.Printf("active: %s\n", st.ChatsByID[st.ActiveChatID].Title)
}

func (s *shell) cmdRename(rest string) {
	arg, label := splitCommand(rest)
	if arg == "" || label == "" {
		fmt.Println("usage: rename <row|id> <new label>")
		return
	}
	id, ok := s.resolveNode(arg)
	if !ok {
		return
	}
	s.svc.RenameTreeNode(id, label, sourceTag)
	s.printTree()
}

func (s *shell) cmdSay(text string) {
	if text == "" {
		fmt.Println("usage: say <text>")
		return
	}
	st := s.svc.GetStore()
	st = s.svc.AppendChatMessage(st.ActiveChatID, model.Message{
		Role:    model.RoleUser,
		Content: text,
	}, sourceTag)
	session := st.ChatsByID[st.ActiveChatID]
	fmt.Printf("[%d messages] %s\n", len(session.Messages), session.Title)
}

// cmdStream plays an assistant reply arriving token by token: the draft
// of the persisted message grows through the coalescer so the store sees
// a bounded number of writes, with a final flush carrying the full text.
func (s *shell) cmdStream(text string) {
	if text == "" {
		fmt.Println("usage: stream <text>")
		return
	}
	st := s.svc.GetStore()
	chatID := st.ActiveChatID
	base := st.ChatsByID[chatID].Messages

	words := strings.Fields(text)
	var buf strings.Builder
	for i, word := range words {
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(word)

		partial := append(cloneMessages(base), model.Message{
			Role:    model.RoleAssistant,
			Content: buf.String(),
			Status:  model.StatusStreaming,
		})
		s.coalescer.Do(func() {
			s.svc.SetChatMessages(chatID, partial, sourceTag)
		})
		time.Sleep(20 * time.Millisecond)
	}

	// The stream is over: drop any suppressed partial and persist the
	// finished message directly.
	s.coalescer.Flush()
	final := append(cloneMessages(base), model.Message{
		Role:    model.RoleAssistant,
		Content: buf.String(),
		Status:  model.StatusDone,
	})
	s.svc.SetChatMessages(chatID, final, sourceTag)
	fmt.Printf("streamed %d words\n", len(words))
}

func cloneMessages(in []model.Message) []model.Message {
	out := make([]model.Message, len(in))
	copy(out, in)
	return out
}

func (s *shell) cmdDraft(text string) {
	st := s.svc.GetStore()
	if text == "" {
		draft := st.ChatsByID[st.ActiveChatID].Draft
		if draft.Text == "" {
			fmt.Println("(no draft)")
		} else {
			fmt.Printf("draft: %s\n", draft.Text)
		}
		return
	}
	s.svc.UpdateChatDraft(st.ActiveChatID, model.Draft{Text: text}, sourceTag)
	fmt.Println("draft saved")
}

func (s *shell) cmdModel(id string) {
	st := s.svc.GetStore()
	if id == "" {
		fmt.Printf("model: %s\n", st.ChatsByID[st.ActiveChatID].Model.ID)
		return
	}
	st = s.svc.SetChatModel(st.ActiveChatID, model.ModelConfig{ID: id}, sourceTag)
	fmt.Printf("model: %s\n", st.ChatsByID[st.ActiveChatID].Model.ID)
}

func (s *shell) cmdThread(id string) {
	st := s.svc.GetStore()
	if id == "" {
		fmt.Printf("thread: %s\n", st.ChatsByID[st.ActiveChatID].ThreadID)
		return
	}
	st = s.svc.SetChatThreadID(st.ActiveChatID, id, sourceTag)
	fmt.Printf("thread: %s\n", st.ChatsByID[st.ActiveChatID].ThreadID)
}

func (s *shell) cmdExport(format string) {
	st := s.svc.GetStore()
	session := st.ChatsByID[st.ActiveChatID]

	switch format {
	case "", "md", "markdown":
		fmt.Printf("# %s\n\n", session.Title)
		for _, msg := range session.Messages {
			fmt.Printf("**%s**: %s\n\n", msg.Role, msg.Content)
		}
	case "json":
		data, err := json.MarshalIndent(session, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			return
		}
		fmt.Println(string(data))
	default:
		fmt.Println("usage: export [md|json]")
	}
}

// =============================================================================
// RENDERING
// =============================================================================

// printTree renders the explorer projection with row numbers that the
// open/rename/delete/dup commands accept.
func (s *shell) printTree() {
	st := s.svc.GetStore()
	proj := chatstore.BuildExplorerFromTree(st.Tree, st.ChatsByID, chatstore.ExplorerHandlers{})

	s.rows = s.rows[:0]
	row := 0
	var render func(ids []string, depth int)
	render = func(ids []string, depth int) {
		for _, id := range ids {
			item, ok := proj.Data[id]
			if !ok {
				continue
			}
			row++
			s.rows = append(s.rows, id)

			indent := strings.Repeat("  ", depth)
			label := util.TruncateWidth(item.Label, 48)
			marker := " "
			if item.Unread {
				marker = "•"
			}

			if item.Entity == model.EntityFolder {
				fmt.Printf("%3d. %s%s %s/\n", row, indent, marker, label)
				render(item.Children, depth+1)
				continue
			}

			active := " "
			if node := st.Tree.NodesByID[id]; node != nil && node.ChatID == st.ActiveChatID {
				active = "*"
			}
			fmt.Printf("%3d. %s%s%s %s  (%s)\n", row, indent, active, marker, label, item.Postfix)
		}
	}
	render(proj.Root, 0)
}

func (s *shell) printMessages() {
	st := s.svc.GetStore()
	session := st.ChatsByID[st.ActiveChatID]
	if len(session.Messages) == 0 {
		fmt.Printf("%s: no messages yet\n", session.Title)
		return
	}
	for _, msg := range session.Messages {
		status := ""
		if msg.Status != "" && msg.Status != model.StatusDone {
			status = " [" + string(msg.Status) + "]"
		}
		fmt.Printf("%s%s: %s\n", msg.Role, status, util.TruncateRunes(msg.Content, 500))
	}
}

func (s *shell) printInfo() {
	st := s.svc.GetStore()
	consts := s.svc.Constants()
	path, _ := s.cfg.StoragePath()

	fmt.Printf("slot:     %s (%s backend, %s)\n", consts.SlotKey, s.cfg.Storage.Backend, path)
	fmt.Printf("schema:   v%d\n", consts.SchemaVersion)
	fmt.Printf("chats:    %d\n", len(st.ChatsByID))
	fmt.Printf("size:     %s (cap %s)\n",
		util.BytesToHuman(model.EstimateBytes(st)),
		util.BytesToHuman(s.cfg.Eviction.MaxTotalBytes))
	fmt.Printf("active:   %s\n", st.ChatsByID[st.ActiveChatID].Title)
}

// resolveNode turns a row number (from the last printed tree) or a raw
// node id into a node id.
func (s *shell) resolveNode(arg string) (string, bool) {
	if arg == "" {
		fmt.Println("which one? run \"tree\" and pass a row number")
		return "", false
	}
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(s.rows) {
			fmt.Printf("no row %d; run \"tree\" first\n", n)
			return "", false
		}
		return s.rows[n-1], true
	}
	st := s.svc.GetStore()
	if st.Tree.NodesByID[arg] == nil {
		fmt.Printf("unknown node %q\n", arg)
		return "", false
	}
	return arg, true
}

func printUsage() {
	fmt.Print(`pupu — persistent chat store shell

usage: pupu [-config <path>] [-version]

commands:
  tree                 show folders and chats (rows are addressable)
  new [title]          create a chat next to the selection, make it active
  folder <label>       create a folder
  open <row|id>        make a chat active
  rename <row|id> <l>  rename a folder or chat
  delete <row|id>      delete a node and everything under it
  dup <row|id>         duplicate a node (and subtree) as "Copy of ..."
  say <text>           append a user message to the active chat
  stream <text>        simulate a streaming assistant reply
  messages             print the active chat
  draft [text]         show or set the active chat's draft
  model [id]           show or set the active chat's model
  thread [id]          show or set the external thread id
  export [md|json]     dump the active chat
  info                 storage diagnostics
  quit                 leave
`)
}
