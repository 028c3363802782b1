package storage

const schema = `
-- The 'cards' table stores each flashcard and its SM-2 scheduling state.
CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]', -- JSON array of normalized tags
    easiness REAL NOT NULL DEFAULT 2.5,
    interval_days INTEGER NOT NULL DEFAULT 1,
    repetitions INTEGER NOT NULL DEFAULT 0,
    next_review DATETIME NOT NULL,
    last_review DATETIME,
    created_at DATETIME NOT NULL,
    source TEXT
);

CREATE INDEX IF NOT EXISTS idx_cards_next_review ON cards(next_review);

-- The 'sessions' table is the history of completed study sessions.
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    start_time DATETIME NOT NULL,
    end_time DATETIME,
    session_type TEXT NOT NULL,
    cards_studied INTEGER NOT NULL DEFAULT 0,
    correct_answers INTEGER NOT NULL DEFAULT 0,
    incorrect_answers INTEGER NOT NULL DEFAULT 0,
    average_difficulty REAL NOT NULL DEFAULT 0,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    quit_early INTEGER NOT NULL DEFAULT 0,
    reviews_json TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_sessions_start_time ON sessions(start_time);

-- 'study_dates' holds one row per calendar day with a completed session.
CREATE TABLE IF NOT EXISTS study_dates (
    day TEXT PRIMARY KEY -- YYYY-MM-DD
);

-- 'streak' is a single-row table with the cached streak counters.
CREATE TABLE IF NOT EXISTS streak (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    last_study_date TEXT
);

CREATE TABLE IF NOT EXISTS achievements (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL,
    progress_current INTEGER NOT NULL DEFAULT 0,
    progress_required INTEGER NOT NULL DEFAULT 0,
    unlocked_at DATETIME
);
`
