// Package dispatch implements the Message Dispatcher component of
// spec.md §4.6: it is what Transport's Handlers are wired to, and it
// makes every state-changing call into Registry, Rooms, Policy and
// Store (internal/app and internal/admintui only read them).
//
// Grounded on original_source/server.cpp's free functions
// HandleConnect/HandleMessage/ProcessCommand/HandleDisconnect and
// BroadcastToRoom, turned into methods on an owned Dispatcher, and on the
// teacher's internal/server.go command table
// (map[string]CommandFunc) for the #-command grammar.
package dispatch

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"chatserver/internal/chaterr"
	"chatserver/internal/policy"
	"chatserver/internal/registry"
	"chatserver/internal/rooms"
	"chatserver/internal/store"
	"chatserver/internal/transport"
)

const (
	defaultHistoryCount = 10
	maxHistoryCount     = 50
	defaultMuteSeconds  = 60
)

// CommandFunc matches one #command's handler. args is the text after
// the command word, unsplit, so handlers that need raw trailing text
// (e.g. #whisper's message body) don't lose internal whitespace.
type CommandFunc func(d *Dispatcher, clientID int, args string)

// Dispatcher wires Transport's three event hooks to Registry, Rooms,
// Policy and Store, exactly as the lock-ordering invariant in
// spec.md §5 requires: Transport -> Registry -> Rooms -> Policy ->
// Store, never holding one component's lock while calling into
// another.
type Dispatcher struct {
	log *zap.Logger

	transport *transport.Transport
	reg       *registry.Registry
	rooms     *rooms.Manager
	policy    *policy.Controller
	store     *store.Store

	commands map[string]CommandFunc
}

// New builds a Dispatcher. tr is assigned after construction via
// Attach, because Transport itself needs a fully-built Handlers value
// (built from this Dispatcher) before it can be constructed -- see
// internal/app for the composition order.
func New(logger *zap.Logger, reg *registry.Registry, rm *rooms.Manager, pc *policy.Controller, st *store.Store) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		log:    logger,
		reg:    reg,
		rooms:  rm,
		policy: pc,
		store:  st,
	}
	d.commands = map[string]CommandFunc{
		"#help":    cmdHelp,
		"#rooms":   cmdRooms,
		"#join":    cmdJoin,
		"#create":  cmdCreate,
		"#leave":   cmdLeave,
		"#online":  cmdOnline,
		"#whisper": cmdWhisper,
		"#history": cmdHistory,
		"#topic":   cmdTopic,
		"#kick":    cmdKick,
		"#ban":     cmdBan,
		"#mute":    cmdMute,
		"#exit":    cmdExit,
	}
	return d
}

// Attach records the Transport this Dispatcher sends replies and
// disconnects through. Must be called before Transport.Start.
func (d *Dispatcher) Attach(tr *transport.Transport) {
	d.transport = tr
}

// Handlers returns the Transport.Handlers bound to this Dispatcher's
// methods, for use constructing the Transport in internal/app.
func (d *Dispatcher) Handlers() transport.Handlers {
	return transport.Handlers{
		OnConnect:    d.OnConnect,
		OnMessage:    d.OnMessage,
		OnDisconnect: d.OnDisconnect,
	}
}

func (d *Dispatcher) send(clientID int, line string) {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if !d.transport.Send(clientID, []byte(line)) {
		d.log.Debug("dropped reply to unknown client",
			zap.Int("client_id", clientID), zap.Error(chaterr.ErrUnknownClient))
	}
}

// sendErr reports one of the chaterr sentinel kinds to the client,
// translating it to the fixed-wording reply spec.md §4.6 specifies for
// that kind. Kinds with no fixed wording fall through to err.Error().
func (d *Dispatcher) sendErr(clientID int, err error) {
	switch {
	case errors.Is(err, chaterr.ErrMuted):
		d.send(clientID, "You are muted.")
	case errors.Is(err, chaterr.ErrRateLimited):
		d.send(clientID, "You are sending too many messages. Please slow down.")
	case errors.Is(err, chaterr.ErrUnknownCommand):
		d.send(clientID, "Unknown command. Type #help for available commands.")
	case errors.Is(err, chaterr.ErrUnknownUser):
		d.send(clientID, "User not found")
	default:
		d.send(clientID, err.Error())
	}
}

// OnConnect is spec.md §4.6's connection setup sequence: rate-limit
// the peer IP, register the client, place it in general, and greet
// it. Grounded on original_source/server.cpp's HandleConnect.
func (d *Dispatcher) OnConnect(clientID int, peerAddr string) {
	ip := hostOf(peerAddr)

	if !d.policy.AllowConnection(ip) {
		d.log.Info("connection rejected by rate limit", zap.String("ip", ip))
		d.transport.Disconnect(clientID)
		return
	}
	d.policy.OnConnect()

	d.reg.Register(clientID, peerAddr)
	d.policy.UpdateActivity(clientID)
	if err := d.rooms.JoinRoom(rooms.GeneralRoom, clientID, ""); err != nil {
		d.log.Error("failed to join general room on connect", zap.Error(err))
	}
	d.reg.SetRoom(clientID, rooms.GeneralRoom)

	correlationID := ""
	if c, ok := d.reg.Get(clientID); ok {
		correlationID = c.CorrelationID
	}
	d.log.Info("client connected",
		zap.Int("client_id", clientID),
		zap.String("peer", peerAddr),
		zap.String("correlation_id", correlationID))
	d.send(clientID, "Welcome to the chat server! You are in #general.\nType #help for available commands.\n")
}

// OnDisconnect is original_source/server.cpp's HandleDisconnect:
// tear down the client's Rooms, Policy and Registry state, then
// announce its departure to the room it was in.
func (d *Dispatcher) OnDisconnect(clientID int) {
	c, ok := d.reg.Get(clientID)
	name := registry.Placeholder(clientID)
	correlationID := ""
	if ok {
		name = c.Name
		correlationID = c.CorrelationID
	}
	room := d.rooms.GetClientRoom(clientID)

	d.rooms.LeaveRoom(clientID)
	d.policy.OnDisconnect()
	d.reg.Remove(clientID)

	if room != "" {
		for _, member := range d.rooms.GetMembers(room) {
			d.send(member, name+" has left the chat")
		}
	}
	d.log.Info("client disconnected",
		zap.Int("client_id", clientID),
		zap.String("name", name),
		zap.String("correlation_id", correlationID))
}

// OnMessage is original_source/server.cpp's HandleMessage: mute-check,
// rate-limit, name-registration-on-first-message, then either dispatch
// a #command or broadcast a chat line to the sender's room.
func (d *Dispatcher) OnMessage(clientID int, data []byte) {
	msg := strings.TrimRight(string(data), "\r\n\x00")
	if msg == "" {
		return
	}

	if d.policy.IsMuted(clientID) {
		d.sendErr(clientID, chaterr.ErrMuted)
		return
	}

	if !d.policy.AllowMessage(clientID) {
		d.sendErr(clientID, chaterr.ErrRateLimited)
		return
	}
	d.policy.RecordMessage(clientID)
	d.policy.UpdateActivity(clientID)
	d.reg.Touch(clientID)

	c, ok := d.reg.Get(clientID)
	if !ok {
		return
	}

	if !c.Named {
		if strings.HasPrefix(msg, "#") {
			d.runCommand(clientID, msg)
			return
		}
		d.registerName(clientID, msg)
		return
	}

	if strings.HasPrefix(msg, "#") {
		d.runCommand(clientID, msg)
		return
	}

	d.broadcastToRoom(clientID, msg)
}

func (d *Dispatcher) registerName(clientID int, name string) {
	d.reg.SetName(clientID, name)
	room := d.rooms.GetClientRoom(clientID)

	for _, member := range d.rooms.GetMembers(room) {
		if member != clientID {
			d.send(member, name+" has joined #"+room)
		}
	}
	d.log.Info("client registered name", zap.Int("client_id", clientID), zap.String("name", name))
}

func (d *Dispatcher) runCommand(clientID int, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	word := fields[0]
	args := strings.TrimSpace(strings.TrimPrefix(line, word))

	handler, ok := d.commands[word]
	if !ok {
		d.sendErr(clientID, chaterr.ErrUnknownCommand)
		return
	}
	handler(d, clientID, args)
}

// broadcastToRoom is original_source/server.cpp's BroadcastToRoom: it
// stores the message before fanning it out, so #history always
// reflects what was actually sent even if a member's socket is slow.
func (d *Dispatcher) broadcastToRoom(clientID int, content string) {
	c, ok := d.reg.Get(clientID)
	if !ok {
		return
	}
	room := d.rooms.GetClientRoom(clientID)

	d.store.Store(store.Message{
		SenderID:   clientID,
		SenderName: c.Name,
		Room:       room,
		Content:    content,
		Timestamp:  time.Now(),
	})

	formatted := c.Name + ": " + content
	for _, member := range d.rooms.GetMembers(room) {
		if member != clientID {
			d.send(member, formatted)
		}
	}
}

// findByName resolves a display name to a client ID via the Registry,
// the Go analogue of original_source/server.cpp's repeated
// g_client_names linear scans in ProcessCommand.
func (d *Dispatcher) findByName(name string) (int, bool) {
	c, ok := d.reg.FindByName(name)
	if !ok {
		return 0, false
	}
	return c.ID, true
}

func hostOf(peerAddr string) string {
	host, _, err := net.SplitHostPort(peerAddr)
	if err != nil {
		return peerAddr
	}
	return host
}

// --- command handlers, one per spec.md §4.6 command -----------------

func cmdHelp(d *Dispatcher, clientID int, _ string) {
	help := "Available commands:\n" +
		"  #rooms     - List all chat rooms\n" +
		"  #join <r>  - Join room <r>\n" +
		"  #create <r>- Create new room\n" +
		"  #leave     - Leave to general\n" +
		"  #online    - List online users\n" +
		"  #whisper <user> <msg> - Private message\n" +
		"  #history [n] - Show last n messages\n" +
		"  #topic [text] - Show or set the room topic\n" +
		"  #kick <u>  - (Admin) Kick user\n" +
		"  #ban <u>   - (Admin) Ban user\n" +
		"  #mute <u> [seconds] - (Admin) Mute user\n" +
		"  #exit      - Disconnect\n"
	d.send(clientID, help)
}

func cmdRooms(d *Dispatcher, clientID int, _ string) {
	list := "Available rooms:\n"
	for _, info := range d.rooms.ListRooms() {
		list += fmt.Sprintf("  #%s (%d users)\n", info.Name, info.MemberCount)
	}
	d.send(clientID, list)
}

func cmdJoin(d *Dispatcher, clientID int, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		d.send(clientID, "Usage: #join <room_name> [password]")
		return
	}
	roomName := fields[0]
	password := ""
	if len(fields) > 1 {
		password = fields[1]
	}

	oldRoom := d.rooms.GetClientRoom(clientID)
	if oldRoom == roomName {
		d.send(clientID, "You are already in #"+roomName)
		return
	}

	c, ok := d.reg.Get(clientID)
	name := registry.Placeholder(clientID)
	if ok {
		name = c.Name
	}

	if err := d.rooms.JoinRoom(roomName, clientID, password); err != nil {
		d.send(clientID, "Failed to join room: "+err.Error())
		return
	}
	d.reg.SetRoom(clientID, roomName)

	if oldRoom != "" {
		for _, m := range d.rooms.GetMembers(oldRoom) {
			d.send(m, name+" left #"+oldRoom)
		}
	}
	for _, m := range d.rooms.GetMembers(roomName) {
		if m != clientID {
			d.send(m, name+" joined #"+roomName)
		}
	}
	d.send(clientID, "Joined #"+roomName)
}

func cmdCreate(d *Dispatcher, clientID int, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		d.send(clientID, "Usage: #create <room_name> [--private [password]]")
		return
	}
	roomName := fields[0]

	private := false
	password := ""
	for i := 1; i < len(fields); i++ {
		if fields[i] == "--private" {
			private = true
			if i+1 < len(fields) {
				password = fields[i+1]
			}
		}
	}

	if err := d.rooms.CreateRoom(roomName, clientID, private, password); err != nil {
		d.send(clientID, "Failed to create room: "+err.Error())
		return
	}
	_ = d.rooms.JoinRoom(roomName, clientID, password)
	d.reg.SetRoom(clientID, roomName)

	c, ok := d.reg.Get(clientID)
	name := registry.Placeholder(clientID)
	if ok {
		name = c.Name
	}
	d.send(clientID, "Created and joined #"+roomName)
	d.log.Info("room created", zap.String("room", roomName), zap.String("by", name))
}

func cmdLeave(d *Dispatcher, clientID int, _ string) {
	current := d.rooms.GetClientRoom(clientID)
	if current == rooms.GeneralRoom {
		d.send(clientID, "You are already in #general")
		return
	}
	if err := d.rooms.JoinRoom(rooms.GeneralRoom, clientID, ""); err != nil {
		d.send(clientID, "Failed to leave room: "+err.Error())
		return
	}
	d.reg.SetRoom(clientID, rooms.GeneralRoom)
	d.send(clientID, "You left #"+current+" and joined #general")
}

func cmdOnline(d *Dispatcher, clientID int, _ string) {
	all := d.reg.All()
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	list := fmt.Sprintf("Online users (%d):\n", len(all))
	for _, c := range all {
		list += fmt.Sprintf("  %s (#%s)\n", c.Name, c.Room)
	}
	d.send(clientID, list)
}

func cmdWhisper(d *Dispatcher, clientID int, args string) {
	fields := strings.SplitN(args, " ", 2)
	if len(fields) < 2 || strings.TrimSpace(fields[1]) == "" {
		d.send(clientID, "Usage: #whisper <username> <message>")
		return
	}
	targetName, body := fields[0], fields[1]

	targetID, ok := d.findByName(targetName)
	if !ok {
		d.sendErr(clientID, chaterr.ErrUnknownUser)
		return
	}

	c, ok := d.reg.Get(clientID)
	name := registry.Placeholder(clientID)
	if ok {
		name = c.Name
	}

	d.send(targetID, "[Whisper from "+name+"]: "+body)
	d.send(clientID, "[Whisper to "+targetName+"]: "+body)
}

func cmdHistory(d *Dispatcher, clientID int, args string) {
	count := defaultHistoryCount
	if n, err := strconv.Atoi(strings.TrimSpace(args)); err == nil {
		count = n
	}
	if count < 1 {
		count = defaultHistoryCount
	}
	if count > maxHistoryCount {
		count = maxHistoryCount
	}

	room := d.rooms.GetClientRoom(clientID)
	messages := d.store.GetRecent(room, count)

	history := fmt.Sprintf("Last %d messages in #%s:\n", len(messages), room)
	for _, m := range messages {
		history += "  " + m.String() + "\n"
	}
	d.send(clientID, history)
}

// cmdTopic is a supplemented command: it is the only command that
// reads or sets spec.md §3's Room.Topic field.
func cmdTopic(d *Dispatcher, clientID int, args string) {
	room := d.rooms.GetClientRoom(clientID)

	if strings.TrimSpace(args) == "" {
		info, ok := d.rooms.GetRoomInfo(room)
		if !ok {
			d.send(clientID, "You are not in a room")
			return
		}
		d.send(clientID, fmt.Sprintf("Topic for #%s: %s", room, info.Topic))
		return
	}

	if err := d.rooms.SetTopic(room, args, clientID); err != nil {
		d.send(clientID, "Failed to set topic: "+err.Error())
		return
	}

	c, ok := d.reg.Get(clientID)
	name := registry.Placeholder(clientID)
	if ok {
		name = c.Name
	}
	for _, m := range d.rooms.GetMembers(room) {
		d.send(m, name+" changed the topic of #"+room+" to: "+args)
	}
}

func cmdKick(d *Dispatcher, clientID int, args string) {
	targetName := strings.Fields(args)
	if len(targetName) == 0 {
		d.send(clientID, "Usage: #kick <username>")
		return
	}
	targetID, ok := d.findByName(targetName[0])
	if !ok {
		d.sendErr(clientID, chaterr.ErrUnknownUser)
		return
	}

	c, ok := d.reg.Get(clientID)
	name := registry.Placeholder(clientID)
	if ok {
		name = c.Name
	}

	d.send(targetID, "You have been kicked by "+name)
	d.transport.Disconnect(targetID)
	d.send(clientID, "Kicked "+targetName[0])
	d.log.Info("client kicked", zap.String("by", name), zap.String("target", targetName[0]))
}

func cmdBan(d *Dispatcher, clientID int, args string) {
	targetName := strings.Fields(args)
	if len(targetName) == 0 {
		d.send(clientID, "Usage: #ban <username>")
		return
	}
	targetID, ok := d.findByName(targetName[0])
	if !ok {
		d.sendErr(clientID, chaterr.ErrUnknownUser)
		return
	}

	target, ok := d.reg.Get(targetID)
	if !ok {
		d.sendErr(clientID, chaterr.ErrUnknownUser)
		return
	}

	c, ok := d.reg.Get(clientID)
	name := registry.Placeholder(clientID)
	if ok {
		name = c.Name
	}

	d.policy.Ban(hostOf(target.PeerAddr))
	d.send(targetID, "You have been banned by "+name)
	d.transport.Disconnect(targetID)
	d.send(clientID, "Banned IP for "+targetName[0])
	d.log.Info("client banned", zap.String("by", name), zap.String("target", targetName[0]))
}

func cmdMute(d *Dispatcher, clientID int, args string) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		d.send(clientID, "Usage: #mute <username> [seconds]")
		return
	}
	targetName := fields[0]
	duration := defaultMuteSeconds
	if len(fields) > 1 {
		if n, err := strconv.Atoi(fields[1]); err == nil {
			duration = n
		}
	}

	targetID, ok := d.findByName(targetName)
	if !ok {
		d.sendErr(clientID, chaterr.ErrUnknownUser)
		return
	}

	c, ok := d.reg.Get(clientID)
	name := registry.Placeholder(clientID)
	if ok {
		name = c.Name
	}

	d.policy.Mute(targetID, duration)
	d.send(targetID, fmt.Sprintf("You have been muted for %d seconds", duration))
	d.send(clientID, fmt.Sprintf("Muted %s for %d seconds", targetName, duration))
	d.log.Info("client muted", zap.String("by", name), zap.String("target", targetName), zap.Int("seconds", duration))
}

func cmdExit(d *Dispatcher, clientID int, _ string) {
	d.transport.Disconnect(clientID)
}
