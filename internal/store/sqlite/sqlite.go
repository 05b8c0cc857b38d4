package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/talkroom/talkroom-server/internal/store"
)

// Schema is the database schema applied on startup.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	avatar        TEXT NOT NULL DEFAULT '',
	is_online     BOOLEAN NOT NULL DEFAULT 0,
	last_seen     DATETIME,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS rooms (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL,
	kind           TEXT NOT NULL,
	created_by     INTEGER NOT NULL REFERENCES users(id),
	direct_key     TEXT UNIQUE,
	last_content   TEXT,
	last_sender_id INTEGER,
	last_kind      TEXT,
	last_at        DATETIME,
	created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS room_members (
	room_id   INTEGER NOT NULL REFERENCES rooms(id),
	user_id   INTEGER NOT NULL REFERENCES users(id),
	joined_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (room_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id    INTEGER NOT NULL REFERENCES rooms(id),
	sender_id  INTEGER NOT NULL REFERENCES users(id),
	content    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	emojis     TEXT NOT NULL DEFAULT '[]',
	file_url   TEXT,
	file_name  TEXT,
	file_size  INTEGER,
	file_mime  TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, id);
CREATE INDEX IF NOT EXISTS idx_room_members_user ON room_members(user_id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, email, passwordHash string) (*store.User, error) {
	query := `
		INSERT INTO users (username, email, password_hash)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, email, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

const userColumns = `id, username, email, password_hash, avatar, is_online, last_seen, created_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var (
		user     store.User
		lastSeen sql.NullTime
	)
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Avatar,
		&user.IsOnline,
		&lastSeen,
		&user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		user.LastSeen = &t
	}
	return &user, nil
}

func (s *SQLiteStore) getUserWhere(ctx context.Context, where string, arg any) (*store.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	return s.getUserWhere(ctx, "id = ?", id)
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	return s.getUserWhere(ctx, "username = ?", username)
}

// GetUserByEmail retrieves a user by email.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*store.User, error) {
	return s.getUserWhere(ctx, "email = ?", email)
}

// SearchUsers searches for users by username substring.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username LIKE ? ORDER BY username LIMIT 20`,
		"%"+query+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]*store.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		user.PasswordHash = ""
		users = append(users, user)
	}
	return users, rows.Err()
}

// SetOnline flips the user's presence flag. Going offline stamps last_seen;
// going online clears it.
func (s *SQLiteStore) SetOnline(ctx context.Context, userID int64, online bool) error {
	var query string
	if online {
		query = `UPDATE users SET is_online = 1, last_seen = NULL WHERE id = ?`
	} else {
		query = `UPDATE users SET is_online = 0, last_seen = CURRENT_TIMESTAMP WHERE id = ?`
	}
	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

// ==== RoomStore implementation ====

// CreateRoom creates a group room with the given participants.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string, kind store.RoomKind, creatorID int64, participantIDs []int64) (*store.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (name, kind, created_by) VALUES (?, ?, ?)`,
		name, string(kind), creatorID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	roomID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	members := append([]int64{creatorID}, participantIDs...)
	for _, uid := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`,
			roomID, uid,
		); err != nil {
			return nil, fmt.Errorf("insert room member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

func directKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("dm:%d:%d", userA, userB)
}

// CreatePrivateRoom creates, or returns the existing, private room between
// two users. The UNIQUE direct_key column makes the first writer win.
func (s *SQLiteStore) CreatePrivateRoom(ctx context.Context, userA, userB int64) (*store.Room, error) {
	key := directKey(userA, userB)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO rooms (name, kind, created_by, direct_key)
		 VALUES ('Private Chat', ?, ?, ?)
		 ON CONFLICT(direct_key) DO NOTHING`,
		string(store.RoomKindPrivate), userA, key,
	)
	if err != nil {
		return nil, fmt.Errorf("insert private room: %w", err)
	}

	var roomID int64
	if n, _ := result.RowsAffected(); n > 0 {
		roomID, err = result.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("get last insert id: %w", err)
		}
		for _, uid := range []int64{userA, userB} {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)`,
				roomID, uid,
			); err != nil {
				return nil, fmt.Errorf("insert room member: %w", err)
			}
		}
	} else {
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM rooms WHERE direct_key = ?`, key,
		).Scan(&roomID); err != nil {
			return nil, fmt.Errorf("lookup private room: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return s.GetRoomByID(ctx, roomID)
}

const roomColumns = `id, name, kind, created_by, last_content, last_sender_id, last_kind, last_at, created_at, updated_at`

func scanRoom(row interface{ Scan(...any) error }) (*store.Room, error) {
	var (
		room     store.Room
		content  sql.NullString
		senderID sql.NullInt64
		kind     sql.NullString
		at       sql.NullTime
	)
	err := row.Scan(
		&room.ID,
		&room.Name,
		&room.Kind,
		&room.CreatedBy,
		&content,
		&senderID,
		&kind,
		&at,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if at.Valid {
		room.LastMessage = &store.LastMessage{
			Content:   content.String,
			SenderID:  senderID.Int64,
			Kind:      store.MessageKind(kind.String),
			Timestamp: at.Time,
		}
	}
	return &room, nil
}

func (s *SQLiteStore) loadParticipants(ctx context.Context, roomID int64) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.email, u.password_hash, u.avatar, u.is_online, u.last_seen, u.created_at
		 FROM users u
		 JOIN room_members rm ON rm.user_id = u.id
		 WHERE rm.room_id = ?
		 ORDER BY rm.joined_at, u.id`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query participants: %w", err)
	}
	defer rows.Close()

	participants := make([]store.User, 0, 2)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		user.PasswordHash = ""
		participants = append(participants, *user)
	}
	return participants, rows.Err()
}

// GetRoomByID retrieves a room with resolved participants.
func (s *SQLiteStore) GetRoomByID(ctx context.Context, id int64) (*store.Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = ?`, id)
	room, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query room: %w", err)
	}

	room.Participants, err = s.loadParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// RoomsOf lists a user's rooms ordered by most recent activity.
func (s *SQLiteStore) RoomsOf(ctx context.Context, userID int64) ([]*store.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms
		 WHERE id IN (SELECT room_id FROM room_members WHERE user_id = ?)
		 ORDER BY updated_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query rooms: %w", err)
	}
	defer rows.Close()

	roomList := make([]*store.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		roomList = append(roomList, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, room := range roomList {
		room.Participants, err = s.loadParticipants(ctx, room.ID)
		if err != nil {
			return nil, err
		}
	}
	return roomList, nil
}

// IsParticipant reports whether the user belongs to the room.
func (s *SQLiteStore) IsParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id = ? AND user_id = ?)`,
		roomID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query membership: %w", err)
	}
	return exists, nil
}

// UpdateLastMessage replaces the room's last-message summary and bumps its
// activity timestamp.
func (s *SQLiteStore) UpdateLastMessage(ctx context.Context, roomID int64, last store.LastMessage) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE rooms
		 SET last_content = ?, last_sender_id = ?, last_kind = ?, last_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		last.Content, last.SenderID, string(last.Kind), last.Timestamp, roomID,
	)
	if err != nil {
		return fmt.Errorf("update last message: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==== MessageStore implementation ====

// AppendMessage persists a message and returns it with ID, sender and
// creation time filled in.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *store.Message) (*store.Message, error) {
	emojis, err := json.Marshal(msg.Emojis)
	if err != nil {
		return nil, fmt.Errorf("marshal emojis: %w", err)
	}

	var fileURL, fileName, fileMime sql.NullString
	var fileSize sql.NullInt64
	if msg.File != nil {
		fileURL = sql.NullString{String: msg.File.URL, Valid: true}
		fileName = sql.NullString{String: msg.File.Name, Valid: true}
		fileSize = sql.NullInt64{Int64: msg.File.Size, Valid: true}
		fileMime = sql.NullString{String: msg.File.MimeType, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (room_id, sender_id, content, kind, emojis, file_url, file_name, file_size, file_mime)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.RoomID, msg.SenderID, msg.Content, string(msg.Kind), string(emojis),
		fileURL, fileName, fileSize, fileMime,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	return s.getMessageByID(ctx, id)
}

const messageColumns = `m.id, m.room_id, m.sender_id, m.content, m.kind, m.emojis,
	m.file_url, m.file_name, m.file_size, m.file_mime, m.created_at,
	u.id, u.username, u.email, u.avatar, u.is_online, u.last_seen, u.created_at`

func scanMessage(row interface{ Scan(...any) error }) (*store.Message, error) {
	var (
		msg      store.Message
		sender   store.User
		emojis   string
		fileURL  sql.NullString
		fileName sql.NullString
		fileSize sql.NullInt64
		fileMime sql.NullString
		lastSeen sql.NullTime
	)
	err := row.Scan(
		&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msg.Kind, &emojis,
		&fileURL, &fileName, &fileSize, &fileMime, &msg.CreatedAt,
		&sender.ID, &sender.Username, &sender.Email, &sender.Avatar,
		&sender.IsOnline, &lastSeen, &sender.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(emojis), &msg.Emojis); err != nil {
		return nil, fmt.Errorf("unmarshal emojis: %w", err)
	}
	if fileURL.Valid {
		msg.File = &store.FileMeta{
			URL:      fileURL.String,
			Name:     fileName.String,
			Size:     fileSize.Int64,
			MimeType: fileMime.String,
		}
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		sender.LastSeen = &t
	}
	msg.Sender = &sender
	return &msg, nil
}

func (s *SQLiteStore) getMessageByID(ctx context.Context, id int64) (*store.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages m JOIN users u ON u.id = m.sender_id WHERE m.id = ?`, id)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// PagedMessages returns one page of a room's messages ordered newest-first,
// plus the total message count for the room. Page and pageSize must be >= 1.
func (s *SQLiteStore) PagedMessages(ctx context.Context, roomID int64, page, pageSize int) ([]*store.Message, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE room_id = ?`, roomID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count messages: %w", err)
	}

	offset := (page - 1) * pageSize
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages m
		 JOIN users u ON u.id = m.sender_id
		 WHERE m.room_id = ?
		 ORDER BY m.id DESC
		 LIMIT ? OFFSET ?`,
		roomID, pageSize, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*store.Message, 0, pageSize)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, total, rows.Err()
}
