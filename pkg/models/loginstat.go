package models

// LoginStat is an append-only audit record of a login attempt, dual
// written under stats/logins/{userID}/{ts} and stats/all_logins/{ts}.
type LoginStat struct {
	UserID     string `json:"user_id"`
	TS         int64  `json:"ts"` // unix nano
	ClientAddr string `json:"client_addr,omitempty"`
	UserAgent  string `json:"user_agent,omitempty"`
	Success    bool   `json:"success"`
}
