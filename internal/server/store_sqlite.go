package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/devbattle/devbattle/internal/devbattle"
)

const (
	timeLayout = "2006-01-02T15:04:05.000Z"

	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 6
	joinCodeAttempts = 5
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

func (s *SQLiteStore) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE")
}

func newJoinCode() string {
	b := make([]byte, joinCodeLength)
	rand.Read(b)
	for i := range b {
		b[i] = joinCodeAlphabet[int(b[i])%len(joinCodeAlphabet)]
	}
	return string(b)
}

const userColumns = `id, email, name, COALESCE(username, ''), COALESCE(bio, ''), COALESCE(profile_picture, ''), created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner, extra ...any) (devbattle.User, error) {
	var u devbattle.User
	var createdAt string
	dest := append([]any{&u.ID, &u.Email, &u.Name, &u.Username, &u.Bio, &u.ProfilePicture, &createdAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return u, err
	}
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

func (s *SQLiteStore) UserByEmail(ctx context.Context, email string) (devbattle.User, string, error) {
	var hash string
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE email = ?`, email,
	), &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return u, "", ErrNotFound
	}
	return u, hash, err
}

func (s *SQLiteStore) CreateUser(ctx context.Context, email, name, passwordHash string) (devbattle.User, error) {
	u := devbattle.User{
		ID:    uuid.NewString(),
		Email: email,
		Name:  name,
	}
	createdAt := s.timestamp()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Email, u.Name, passwordHash, createdAt)
	if isUniqueViolation(err) {
		return u, ErrConflict
	}
	if err != nil {
		return u, err
	}
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (devbattle.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return u, ErrNotFound
	}
	return u, err
}

func (s *SQLiteStore) UpdateProfile(ctx context.Context, id, username, bio string) (devbattle.User, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE users SET username = NULLIF(?, ''), bio = NULLIF(?, '') WHERE id = ?
	`, username, bio, id)
	if isUniqueViolation(err) {
		return devbattle.User{}, ErrConflict
	}
	if err != nil {
		return devbattle.User{}, err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return devbattle.User{}, ErrNotFound
	}
	return s.GetUser(ctx, id)
}

func (s *SQLiteStore) CreateSession(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	id := uuid.NewString()
	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, id, userID, now.Format(timeLayout), now.Add(ttl).Format(timeLayout))
	return id, err
}

func (s *SQLiteStore) UserFromSession(ctx context.Context, sessionID string) (devbattle.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.name, COALESCE(u.username, ''), COALESCE(u.bio, ''),
		       COALESCE(u.profile_picture, ''), u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ? AND s.expires_at > ?
	`, sessionID, s.timestamp()))
	if errors.Is(err, sql.ErrNoRows) {
		return u, errNoSession
	}
	return u, err
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

// CreateChallenge inserts the challenge with its questions and test cases in
// one transaction, retrying with a fresh join code on collision.
func (s *SQLiteStore) CreateChallenge(ctx context.Context, c devbattle.Challenge, questions []devbattle.Question) (devbattle.ChallengeDetail, error) {
	c.ID = uuid.NewString()
	c.Status = devbattle.StatusNotStarted
	createdAt := s.timestamp()
	c.CreatedAt = parseTime(createdAt)

	for i := range questions {
		questions[i].ID = uuid.NewString()
		questions[i].ChallengeID = c.ID
		for j := range questions[i].TestCases {
			questions[i].TestCases[j].ID = uuid.NewString()
			questions[i].TestCases[j].QuestionID = questions[i].ID
		}
	}

	var err error
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		c.JoinCode = newJoinCode()
		err = s.insertChallenge(ctx, c, createdAt, questions)
		if !isUniqueViolation(err) {
			break
		}
	}
	if err != nil {
		return devbattle.ChallengeDetail{}, fmt.Errorf("inserting challenge: %w", err)
	}

	return devbattle.ChallengeDetail{
		Challenge:    c,
		Questions:    questions,
		Participants: []devbattle.Participant{},
	}, nil
}

func (s *SQLiteStore) insertChallenge(ctx context.Context, c devbattle.Challenge, createdAt string, questions []devbattle.Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO challenges (id, title, description, duration, join_code, status, creator_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Title, c.Description, c.Duration, c.JoinCode, string(c.Status), c.CreatorID, createdAt)
	if err != nil {
		return err
	}

	for qi, q := range questions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO questions (id, challenge_id, position, title, problem_statement,
			                       input_format, output_format, constraints_text, creator_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, q.ID, c.ID, qi, q.Title, q.ProblemStatement, q.InputFormat, q.OutputFormat, q.Constraints, c.CreatorID)
		if err != nil {
			return err
		}
		for ti, tc := range q.TestCases {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO test_cases (id, question_id, position, input, expected)
				VALUES (?, ?, ?, ?, ?)
			`, tc.ID, q.ID, ti, tc.Input, tc.ExpectedOutput)
			if err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

const challengeColumns = `id, title, description, duration, join_code, status, creator_id, created_at`

func scanChallenge(row rowScanner) (devbattle.Challenge, error) {
	var c devbattle.Challenge
	var status, createdAt string
	if err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Duration, &c.JoinCode, &status, &c.CreatorID, &createdAt); err != nil {
		return c, err
	}
	c.Status = devbattle.ChallengeStatus(status)
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

func (s *SQLiteStore) GetChallenge(ctx context.Context, id string) (devbattle.ChallengeDetail, error) {
	c, err := scanChallenge(s.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return devbattle.ChallengeDetail{}, ErrNotFound
	}
	if err != nil {
		return devbattle.ChallengeDetail{}, err
	}

	d := devbattle.ChallengeDetail{Challenge: c}
	if d.Questions, err = s.listQuestions(ctx, []string{c.ID}); err != nil {
		return d, err
	}
	if err := s.attachTestCases(ctx, d.Questions); err != nil {
		return d, err
	}
	if d.Participants, err = s.listParticipants(ctx, c.ID); err != nil {
		return d, err
	}
	return d, nil
}

func (s *SQLiteStore) ChallengeByJoinCode(ctx context.Context, code string) (devbattle.Challenge, error) {
	c, err := scanChallenge(s.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE join_code = ?`, code,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return c, ErrNotFound
	}
	return c, err
}

func (s *SQLiteStore) ListChallenges(ctx context.Context, creatorID string, statuses []devbattle.ChallengeStatus) ([]devbattle.ChallengeDetail, error) {
	if len(statuses) == 0 {
		return []devbattle.ChallengeDetail{}, nil
	}

	args := []any{creatorID}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges
		 WHERE creator_id = ? AND status IN (`+placeholders+`)
		 ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}

	challenges := []devbattle.ChallengeDetail{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		challenges = append(challenges, devbattle.ChallengeDetail{Challenge: c})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(challenges) == 0 {
		return challenges, nil
	}

	ids := make([]string, len(challenges))
	for i, c := range challenges {
		ids[i] = c.ID
	}
	questions, err := s.listQuestions(ctx, ids)
	if err != nil {
		return nil, err
	}
	byChallenge := make(map[string][]devbattle.Question, len(challenges))
	for _, q := range questions {
		byChallenge[q.ChallengeID] = append(byChallenge[q.ChallengeID], q)
	}
	for i := range challenges {
		challenges[i].Questions = byChallenge[challenges[i].ID]
		if challenges[i].Questions == nil {
			challenges[i].Questions = []devbattle.Question{}
		}
	}
	return challenges, nil
}

func (s *SQLiteStore) listQuestions(ctx context.Context, challengeIDs []string) ([]devbattle.Question, error) {
	args := make([]any, len(challengeIDs))
	for i, id := range challengeIDs {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(challengeIDs)), ", ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, challenge_id, title, problem_statement, input_format, output_format, constraints_text
		FROM questions
		WHERE challenge_id IN (`+placeholders+`)
		ORDER BY challenge_id, position
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []devbattle.Question{}
	for rows.Next() {
		var q devbattle.Question
		if err := rows.Scan(&q.ID, &q.ChallengeID, &q.Title, &q.ProblemStatement, &q.InputFormat, &q.OutputFormat, &q.Constraints); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (s *SQLiteStore) attachTestCases(ctx context.Context, questions []devbattle.Question) error {
	if len(questions) == 0 {
		return nil
	}

	index := make(map[string]int, len(questions))
	args := make([]any, len(questions))
	for i, q := range questions {
		index[q.ID] = i
		args[i] = q.ID
		questions[i].TestCases = []devbattle.TestCase{}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(questions)), ", ")

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, question_id, input, expected
		FROM test_cases
		WHERE question_id IN (`+placeholders+`)
		ORDER BY question_id, position
	`, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tc devbattle.TestCase
		if err := rows.Scan(&tc.ID, &tc.QuestionID, &tc.Input, &tc.ExpectedOutput); err != nil {
			return err
		}
		i := index[tc.QuestionID]
		questions[i].TestCases = append(questions[i].TestCases, tc)
	}
	return rows.Err()
}

func (s *SQLiteStore) listParticipants(ctx context.Context, challengeID string) ([]devbattle.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.name, COALESCE(u.username, ''), p.joined_at
		FROM challenge_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.challenge_id = ?
		ORDER BY p.joined_at
	`, challengeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := []devbattle.Participant{}
	for rows.Next() {
		var p devbattle.Participant
		var joinedAt string
		if err := rows.Scan(&p.UserID, &p.Name, &p.Username, &joinedAt); err != nil {
			return nil, err
		}
		p.JoinedAt = parseTime(joinedAt)
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *SQLiteStore) UpdateChallengeStatus(ctx context.Context, id string, status devbattle.ChallengeStatus) error {
	result, err := s.db.ExecContext(ctx, `UPDATE challenges SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddParticipant connects the user to the challenge. Joining twice keeps the
// original joined_at.
func (s *SQLiteStore) AddParticipant(ctx context.Context, challengeID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO challenge_participants (challenge_id, user_id, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT(challenge_id, user_id) DO NOTHING
	`, challengeID, userID, s.timestamp())
	return err
}

func (s *SQLiteStore) CountParticipants(ctx context.Context, challengeID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM challenge_participants WHERE challenge_id = ?`, challengeID,
	).Scan(&count)
	return count, err
}
