package autocomplete

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"

	"pairpad-server/core"
)

type (
	SuggestRequest struct {
		Code           *string `json:"code"`
		CursorPosition *int    `json:"cursorPosition"`
		Language       string  `json:"language"`
	}

	SuggestResponse struct {
		Suggestion    string `json:"suggestion"`
		StartPosition int    `json:"start_position"`
		EndPosition   int    `json:"end_position"`
	}
)

var keywords = map[string][]string{
	"python": {
		"def ", "return ", "if ", "for ", "while ", "import ",
		"from ", "class ", "print(", "self.", "try:", "except ",
	},
	"javascript": {
		"function ", "const ", "let ", "return ", "if ", "for ",
		"while ", "console.log(", "async ", "await ", "=> ",
	},
	"java": {
		"public ", "private ", "class ", "void ", "return ",
		"if ", "for ", "while ", "System.out.println(",
	},
}

// Suggester produces rule-based completions. It is not a language model.
type Suggester struct {
	// intN picks a random index in [0, n).
	intN func(n int) int
}

func NewSuggester() *Suggester {
	return &Suggester{intN: rand.IntN}
}

// Suggest returns the completion to insert at cursor, which is a character
// (not byte) offset into code.
func (s *Suggester) Suggest(code string, cursor int, language string) SuggestResponse {
	table, ok := keywords[strings.ToLower(language)]
	if !ok {
		table = keywords[core.DefaultLanguage]
	}

	typed := lineContext(code, cursor)
	var suggestion string
	switch {
	case typed == "":
		suggestion = s.pick(table)
	case strings.HasSuffix(typed, "def"), strings.HasSuffix(typed, "class"):
		suggestion = " "
	case strings.HasSuffix(typed, "if"), strings.HasSuffix(typed, "for"), strings.HasSuffix(typed, "while"):
		suggestion = " ():"
	case strings.HasSuffix(typed, "import"):
		suggestion = " "
	case strings.HasSuffix(typed, "from"):
		suggestion = " import "
	default:
		var ok bool
		if suggestion, ok = completeKeyword(table, typed); !ok {
			suggestion = s.pick(table)
		}
	}

	return SuggestResponse{
		Suggestion:    suggestion,
		StartPosition: cursor,
		EndPosition:   cursor + len([]rune(suggestion)),
	}
}

// completeKeyword returns the rest of the first keyword that starts with
// typed, ignoring case. Keywords are ASCII.
func completeKeyword(table []string, typed string) (string, bool) {
	n := utf8.RuneCountInString(typed)
	lower := strings.ToLower(typed)
	for _, kw := range table {
		if n <= len(kw) && strings.HasPrefix(strings.ToLower(kw), lower) {
			return kw[n:], true
		}
	}
	return "", false
}

func (s *Suggester) pick(table []string) string {
	if len(table) == 0 {
		return ""
	}
	return table[s.intN(len(table))]
}

// lineContext returns the text between the start of the cursor's line and
// the cursor, trimmed.
func lineContext(code string, cursor int) string {
	runes := []rune(code)
	if cursor > len(runes) {
		cursor = len(runes)
	}
	before := string(runes[:cursor])
	if i := strings.LastIndexByte(before, '\n'); i >= 0 {
		before = before[i+1:]
	}
	return strings.TrimSpace(before)
}

// HandleSuggest serves POST /autocomplete.
func HandleSuggest(s *Suggester) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SuggestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logrus.WithError(err).Warn("Failed to decode autocomplete request")
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "Invalid request body"})
			return
		}
		if req.Code == nil || req.CursorPosition == nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "code and cursorPosition are required"})
			return
		}
		if *req.CursorPosition < 0 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, map[string]string{"error": "cursorPosition must not be negative"})
			return
		}
		if req.Language == "" {
			req.Language = core.DefaultLanguage
		}

		resp := s.Suggest(*req.Code, *req.CursorPosition, req.Language)
		logrus.WithFields(logrus.Fields{
			"language":   req.Language,
			"cursor":     *req.CursorPosition,
			"suggestion": resp.Suggestion,
		}).Debug("Autocomplete suggestion served")
		render.JSON(w, r, resp)
	}
}
