package main

import (
	"bufio"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/SiteKeeper/internal/client/connectivity"
	"github.com/atinyakov/SiteKeeper/internal/client/data"
	"github.com/atinyakov/SiteKeeper/internal/client/localstore"
	"github.com/atinyakov/SiteKeeper/internal/client/reconcile"
	"github.com/atinyakov/SiteKeeper/internal/models"
)

const nsSession = "session"

type session struct {
	Login string `json:"login"`
	Token string `json:"token"`
}

func loadSession(ctx context.Context, store data.KV) (session, error) {
	var s session
	_, err := store.Get(ctx, nsSession, "current", &s)
	return s, err
}

func saveSession(ctx context.Context, store data.KV, s session) error {
	return store.Set(ctx, nsSession, "current", s)
}

// authClient is the account part of the remote client.
type authClient interface {
	Register(ctx context.Context, login, password string) (string, error)
	Login(ctx context.Context, login, password string) (string, error)
	Logout(ctx context.Context) error
	SetToken(token string)
}

type shell struct {
	ctx      context.Context
	out      *console
	in       *bufio.Scanner
	password func(*bufio.Scanner) (string, error)

	client  authClient
	store   localstore.Store
	conn    *connectivity.Signal
	prober  *connectivity.Prober
	orch    *reconcile.Orchestrator
	env     *data.Env
	hooks   *data.Hooks
	session session

	watching map[string]context.CancelFunc
}

const helpText = `Available commands:
  register <login> | login <login> | logout | whoami
  status | online | offline | auto | sync
  folders | folder add <name> | folder rename <id> <name>
  folder archive|unarchive|delete|restore|purge <id>
  projects [<folder>|-] | project add <title> | project rename <id> <title>
  project move <id> <folder>|- | project archive|unarchive|delete|restore|purge <id>
  trash
  chat <project> | say <project> <text> | watch <project>
  notes <project> | note <project> <text>
  details <project> | detail <project> <key> <value>
  files <project> | upload <project> <path> | download <project> <file> <path>
  file delete|purge <project> <file>
  help | exit`

// run is the interactive loop. It returns on exit or end of input.
func (s *shell) run() {
	for {
		s.out.Printf("%s ", titleStyle.Render("sitekeeper>"))
		if !s.in.Scan() {
			break
		}
		args := strings.Fields(strings.TrimSpace(s.in.Text()))
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			s.out.Println("Bye")
			break
		}
		if err := s.dispatch(args); err != nil {
			s.out.Println(errStyle.Render("error: " + err.Error()))
		}
	}
	for _, cancel := range s.watching {
		cancel()
	}
}

var errUsage = errors.New("wrong arguments, type 'help'")

func (s *shell) dispatch(args []string) error {
	switch args[0] {
	case "help":
		s.out.Println(helpText)
	case "register", "login":
		if len(args) != 2 {
			return errUsage
		}
		return s.authenticate(args[0], args[1])
	case "logout":
		return s.logout()
	case "whoami":
		s.out.Println(cmp.Or(s.session.Login, "not logged in"))
	case "status":
		return s.status()
	case "online", "offline":
		s.prober.Pause()
		s.conn.Set(args[0] == "online")
	case "auto":
		s.prober.Resume()
		s.prober.ProbeOnce(s.ctx)
	case "sync":
		return s.sync()
	case "folders":
		return s.listFolders()
	case "folder":
		return s.folder(args[1:])
	case "projects":
		return s.listProjects(args[1:])
	case "project":
		return s.project(args[1:])
	case "trash":
		return s.trash()
	case "chat":
		return s.chat(args[1:])
	case "say":
		return s.say(args[1:])
	case "watch":
		return s.watch(args[1:])
	case "notes":
		return s.notes(args[1:])
	case "note":
		return s.note(args[1:])
	case "details":
		return s.details(args[1:])
	case "detail":
		return s.detail(args[1:])
	case "files":
		return s.files(args[1:])
	case "upload":
		return s.upload(args[1:])
	case "file":
		return s.file(args[1:])
	case "download":
		return s.download(args[1:])
	default:
		s.out.Println("Unknown command. Type 'help' for a list of commands.")
	}
	return nil
}

func (s *shell) authenticate(cmd, login string) error {
	s.out.Printf("Password: ")
	password, err := s.password(s.in)
	if err != nil {
		return err
	}

	var token string
	if cmd == "register" {
		token, err = s.client.Register(s.ctx, login, password)
	} else {
		token, err = s.client.Login(s.ctx, login, password)
	}
	if err != nil {
		return err
	}
	s.session = session{Login: login, Token: token}
	s.env.UserID = login
	if err := saveSession(s.ctx, s.store, s.session); err != nil {
		return err
	}
	s.out.Println(okStyle.Render("signed in as " + login))
	return nil
}

// logout forgets the token locally. The server revokes it only when it can
// be reached; otherwise the token runs out on its own.
func (s *shell) logout() error {
	if s.session.Token != "" && s.env.Rec.IsOnline() {
		if err := s.client.Logout(s.ctx); err != nil {
			s.out.Println(warnStyle.Render("server did not revoke the token: " + err.Error()))
		}
	}
	s.session.Token = ""
	s.client.SetToken("")
	if err := saveSession(s.ctx, s.store, s.session); err != nil {
		return err
	}
	s.out.Println("signed out")
	return nil
}

func (s *shell) status() error {
	ops, err := s.store.All(s.ctx)
	if err != nil {
		return err
	}
	s.out.Printf("status: %s\npending operations: %d\n", connectionBadge(s.orch.Status()), len(ops))
	return nil
}

func (s *shell) sync() error {
	if !s.env.Rec.IsOnline() {
		s.out.Println(warnStyle.Render("offline, nothing synchronized"))
		return nil
	}
	res, err := s.orch.RequestSync(s.ctx)
	if err != nil {
		return err
	}
	if res.Deferred {
		s.out.Println("a synchronization is already running")
		return nil
	}
	s.out.Printf("attempted %d, synced %d, still queued %d\n", res.Attempted, res.Succeeded, res.Remaining)
	return nil
}

// pick finds the record whose id starts with ref or whose name equals it.
func pick[T models.Record](items []T, ref string, name func(T) string) (T, error) {
	var found []T
	for _, it := range items {
		if strings.HasPrefix(it.PrimaryKey(), ref) || strings.EqualFold(name(it), ref) {
			found = append(found, it)
		}
	}
	var zero T
	switch len(found) {
	case 0:
		return zero, fmt.Errorf("%q not found", ref)
	case 1:
		return found[0], nil
	}
	return zero, fmt.Errorf("%q is ambiguous", ref)
}

func folderName(f models.Folder) string   { return f.Name }
func projectTitle(p models.Project) string { return p.Title }
func fileName(f models.File) string        { return f.Name }

func (s *shell) findFolder(ref string) (models.Folder, error) {
	all, err := s.hooks.Folders.All(s.ctx)
	if err != nil {
		return models.Folder{}, err
	}
	return pick(all, ref, folderName)
}

func (s *shell) findProject(ref string) (models.Project, error) {
	all, err := s.hooks.Projects.All(s.ctx)
	if err != nil {
		return models.Project{}, err
	}
	return pick(all, ref, projectTitle)
}

func (s *shell) printFolder(f models.Folder) {
	flags := ""
	if f.Archived {
		flags = dimStyle.Render(" [archived]")
	}
	s.out.Printf("  %s  %s%s  %s\n", dimStyle.Render(shortID(f.ID)), f.Name, flags, statusBadge(f.SyncStatus))
}

func (s *shell) printProject(p models.Project) {
	flags := ""
	if p.Archived {
		flags = dimStyle.Render(" [archived]")
	}
	s.out.Printf("  %s  %s%s  %s\n", dimStyle.Render(shortID(p.ID)), p.Title, flags, statusBadge(p.SyncStatus))
}

func (s *shell) listFolders() error {
	folders, err := s.hooks.Folders.Active(s.ctx)
	if err != nil {
		return err
	}
	if len(folders) == 0 {
		s.out.Println("no folders")
	}
	for _, f := range folders {
		s.printFolder(f)
	}
	return nil
}

func (s *shell) folder(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	if args[0] == "add" {
		f, err := s.hooks.Folders.Create(s.ctx, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		s.printFolder(f)
		return nil
	}

	f, err := s.findFolder(args[1])
	if err != nil {
		return err
	}
	folders := s.hooks.Folders
	switch args[0] {
	case "rename":
		if len(args) < 3 {
			return errUsage
		}
		f, err = folders.Rename(s.ctx, f, strings.Join(args[2:], " "))
	case "archive", "unarchive":
		f, err = folders.SetArchived(s.ctx, f, args[0] == "archive")
	case "delete":
		f, err = folders.SoftDelete(s.ctx, f)
	case "restore":
		f, err = folders.Restore(s.ctx, f)
	case "purge":
		status, err := folders.DeletePermanently(s.ctx, f)
		if err != nil {
			return err
		}
		s.out.Printf("deleted %s  %s\n", f.Name, statusBadge(status))
		return nil
	default:
		return errUsage
	}
	if err != nil {
		return err
	}
	s.printFolder(f)
	return nil
}

func (s *shell) listProjects(args []string) error {
	var (
		projects []models.Project
		err      error
	)
	switch {
	case len(args) == 0:
		projects, err = s.hooks.Projects.Active(s.ctx)
	case args[0] == "-":
		projects, err = s.hooks.Projects.InFolder(s.ctx, nil)
	default:
		var f models.Folder
		if f, err = s.findFolder(args[0]); err == nil {
			projects, err = s.hooks.Projects.InFolder(s.ctx, &f.ID)
		}
	}
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		s.out.Println("no projects")
	}
	for _, p := range projects {
		s.printProject(p)
	}
	return nil
}

func (s *shell) project(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	if args[0] == "add" {
		p, err := s.hooks.Projects.Create(s.ctx, strings.Join(args[1:], " "), nil)
		if err != nil {
			return err
		}
		s.printProject(p)
		return nil
	}

	p, err := s.findProject(args[1])
	if err != nil {
		return err
	}
	projects := s.hooks.Projects
	switch args[0] {
	case "rename":
		if len(args) < 3 {
			return errUsage
		}
		p, err = projects.Rename(s.ctx, p, strings.Join(args[2:], " "))
	case "move":
		if len(args) != 3 {
			return errUsage
		}
		var folderID *string
		if args[2] != "-" {
			f, err := s.findFolder(args[2])
			if err != nil {
				return err
			}
			folderID = &f.ID
		}
		p, err = projects.Move(s.ctx, p, folderID)
	case "archive", "unarchive":
		p, err = projects.SetArchived(s.ctx, p, args[0] == "archive")
	case "delete":
		p, err = projects.SoftDelete(s.ctx, p)
	case "restore":
		p, err = projects.Restore(s.ctx, p)
	case "purge":
		status, err := projects.DeletePermanently(s.ctx, p)
		if err != nil {
			return err
		}
		s.out.Printf("deleted %s  %s\n", p.Title, statusBadge(status))
		return nil
	default:
		return errUsage
	}
	if err != nil {
		return err
	}
	s.printProject(p)
	return nil
}

func (s *shell) trash() error {
	folders, err := s.hooks.Folders.Trash(s.ctx)
	if err != nil {
		return err
	}
	projects, err := s.hooks.Projects.Trash(s.ctx)
	if err != nil {
		return err
	}
	if len(folders)+len(projects) == 0 {
		s.out.Println("trash is empty")
	}
	for _, f := range folders {
		s.printFolder(f)
	}
	for _, p := range projects {
		s.printProject(p)
	}
	return nil
}

type textContent struct {
	Text string `json:"text"`
}

func (s *shell) chat(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, err := s.findProject(args[0])
	if err != nil {
		return err
	}
	msgs, err := s.hooks.Messages.ForProject(s.ctx, p.ID)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		s.out.Println("no messages")
	}
	for _, m := range msgs {
		var body textContent
		text := string(m.Content)
		if m.Type == models.MessageText && json.Unmarshal(m.Content, &body) == nil {
			text = body.Text
		}
		s.out.Printf("  %s %s: %s  %s\n", dimStyle.Render(m.Timestamp.Local().Format("02.01. 15:04")),
			titleStyle.Render(cmp.Or(m.UserID, "?")), text, statusBadge(m.SyncStatus))
	}
	return nil
}

func (s *shell) say(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	p, err := s.findProject(args[0])
	if err != nil {
		return err
	}
	content, err := json.Marshal(textContent{Text: strings.Join(args[1:], " ")})
	if err != nil {
		return err
	}
	m, err := s.hooks.Messages.Send(s.ctx, p.ID, models.MessageText, content)
	if err != nil {
		return err
	}
	s.out.Printf("sent  %s\n", statusBadge(m.SyncStatus))
	return nil
}

func (s *shell) watch(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, err := s.findProject(args[0])
	if err != nil {
		return err
	}
	if s.watching == nil {
		s.watching = map[string]context.CancelFunc{}
	}
	if _, ok := s.watching[p.ID]; ok {
		return nil
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.watching[p.ID] = cancel
	unsubscribe := s.env.Bus.Subscribe(func(table models.Table) {
		if table == models.TableMessages {
			s.out.Println(syncingStyle.Render("✉ chat updated"))
		}
	})
	go func() {
		defer unsubscribe()
		s.hooks.Messages.Watch(ctx, p.ID)
	}()
	s.out.Printf("watching chat of %s\n", p.Title)
	return nil
}

func (s *shell) notes(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, err := s.findProject(args[0])
	if err != nil {
		return err
	}
	notes, err := s.hooks.Notes.List(s.ctx, models.Filter{"project_id": p.ID, "deleted_at": nil})
	if err != nil {
		return err
	}
	for _, n := range notes {
		s.out.Printf("  %s  %s  %s\n", dimStyle.Render(shortID(n.ID)), n.Body, statusBadge(n.SyncStatus))
	}
	return nil
}

func (s *shell) note(args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	p, err := s.findProject(args[0])
	if err != nil {
		return err
	}
	n, err := s.hooks.Notes.Save(s.ctx, newNote(p.ID, s.env.UserID, strings.Join(args[1:], " ")))
	if err != nil {
		return err
	}
	s.out.Printf("  %s  %s  %s\n", dimStyle.Render(shortID(n.ID)), n.Body, statusBadge(n.SyncStatus))
	return nil
}

func (s *shell) details(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, err := s.findProject(args[0])
	if err != nil {
		return err
	}
	details, err := s.hooks.Details.List(s.ctx, models.Filter{"project_id": p.ID})
	if err != nil {
		return err
	}
	for _, d := range details {
		s.out.Printf("  %s: %s  %s\n", titleStyle.Render(d.Key), d.Value, statusBadge(d.SyncStatus))
	}
	return nil
}

// detail sets a project detail, reusing the row of an existing key.
func (s *shell) detail(args []string) error {
	if len(args) < 3 {
		return errUsage
	}
	p, err := s.findProject(args[0])
	if err != nil {
		return err
	}
	details, err := s.hooks.Details.List(s.ctx, models.Filter{"project_id": p.ID, "key": args[1]})
	if err != nil {
		return err
	}
	d := newDetail(p.ID, args[1])
	if len(details) > 0 {
		d = details[0]
	}
	d.Value = strings.Join(args[2:], " ")
	d, err = s.hooks.Details.Save(s.ctx, touchDetail(d))
	if err != nil {
		return err
	}
	s.out.Printf("  %s: %s  %s\n", titleStyle.Render(d.Key), d.Value, statusBadge(d.SyncStatus))
	return nil
}

func (s *shell) files(args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	p, err := s.findProject(args[0])
	if err != nil {
		return err
	}
	files, err := s.hooks.Files.InProject(s.ctx, p.ID, nil)
	if err != nil {
		return err
	}
	for _, f := range files {
		s.out.Printf("  %s  %s  %d bytes  %s\n", dimStyle.Render(shortID(f.ID)), f.Name, f.Size, statusBadge(f.SyncStatus))
	}
	return nil
}

func (s *shell) upload(args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	p, err := s.findProject(args[0])
	if err != nil {
		return err
	}
	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	name := filepath.Base(args[1])
	mimeType := cmp.Or(mime.TypeByExtension(filepath.Ext(name)), "application/octet-stream")

	file, err := s.hooks.Files.Upload(s.ctx, p.ID, nil, name, f, info.Size(), mimeType)
	if errors.Is(err, data.ErrOffline) {
		return errors.New("uploads need a connection to the server")
	}
	if err != nil {
		return err
	}
	s.out.Printf("uploaded %s  %s\n", file.Name, statusBadge(file.SyncStatus))
	return nil
}

func (s *shell) file(args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	p, err := s.findProject(args[1])
	if err != nil {
		return err
	}
	files := s.hooks.Files
	switch args[0] {
	case "delete":
		all, err := files.InProject(s.ctx, p.ID, nil)
		if err != nil {
			return err
		}
		f, err := pick(all, args[2], fileName)
		if err != nil {
			return err
		}
		if f, err = files.SoftDelete(s.ctx, f); err != nil {
			return err
		}
		s.out.Printf("moved %s to the trash  %s\n", f.Name, statusBadge(f.SyncStatus))
	case "purge":
		trash, err := files.Trash(s.ctx, p.ID)
		if err != nil {
			return err
		}
		f, err := pick(trash, args[2], fileName)
		if err != nil {
			return err
		}
		status, err := files.DeletePermanently(s.ctx, f)
		if errors.Is(err, data.ErrOffline) {
			return errors.New("deleting file content needs a connection to the server")
		}
		if err != nil {
			return err
		}
		s.out.Printf("deleted %s  %s\n", f.Name, statusBadge(status))
	default:
		return errUsage
	}
	return nil
}

func (s *shell) download(args []string) error {
	if len(args) != 3 {
		return errUsage
	}
	p, err := s.findProject(args[0])
	if err != nil {
		return err
	}
	all, err := s.hooks.Files.InProject(s.ctx, p.ID, nil)
	if err != nil {
		return err
	}
	f, err := pick(all, args[1], fileName)
	if err != nil {
		return err
	}
	rc, err := s.hooks.Files.Open(s.ctx, f)
	if errors.Is(err, data.ErrOffline) {
		return errors.New("downloads need a connection to the server")
	}
	if err != nil {
		return err
	}
	defer rc.Close()

	dst, err := os.Create(args[2])
	if err != nil {
		return err
	}
	n, err := io.Copy(dst, rc)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("download %s: %w", f.Name, err)
	}
	s.out.Printf("saved %s (%d bytes) to %s\n", f.Name, n, args[2])
	return nil
}
