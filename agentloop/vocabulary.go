package agentloop

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultLanguages is the configured language pair for keyword tables.
var DefaultLanguages = []language.Tag{language.English, language.Indonesian}

// vocabulary holds the keyword tables of one language. Single words match
// against the token set of the text; entries containing spaces or
// punctuation match as substrings.
type vocabulary struct {
	// classifier
	greetings   []string
	fillers     []string
	pentest     []string
	file        []string
	code        []string
	web         []string
	terminal    []string
	technical   []string
	connectives []string

	// shared
	interrogatives []string
	operations     []string

	// validator
	errorMarkers   []string
	errorTerms     []string
	successTerms   []string
	completion     []string
	progress       []string
	successPhrases []string
	thoughtDone    []string
	resultLabels   []string
}

var english = vocabulary{
	greetings: []string{
		"hi", "hello", "hey", "hi there", "hello there", "hey there", "yo",
		"good morning", "good afternoon", "good evening", "good night",
		"thanks", "thank you", "thank you very much", "thanks a lot", "thx", "ty",
		"bye", "goodbye", "see you", "ok", "okay", "cool", "nice", "great",
		"how are you", "how are you doing", "what's up", "whats up", "sup",
	},
	fillers: []string{
		"for", "the", "your", "help", "so", "much", "very", "a", "lot", "again",
		"all", "everyone", "there", "friend", "buddy", "mate", "man", "bro",
	},
	pentest: []string{
		"pentest", "pentesting", "penetration test", "penetration testing",
		"vulnerability", "vulnerabilities", "exploit", "exploits", "cve",
		"nmap", "sqlmap", "nikto", "metasploit", "burp", "gobuster", "dirb",
		"port scan", "scan ports", "scan the ports", "security audit", "security scan",
		"sql injection", "xss", "csrf", "reconnaissance", "recon", "privilege escalation",
	},
	file: []string{
		"file", "files", "folder", "folders", "directory", "directories",
		"read file", "write file", "create file", "delete file", "rename",
		".json", ".txt", ".yaml", ".yml", ".csv", ".md", ".log", ".env", ".ini", ".toml",
	},
	code: []string{
		"code", "coding", "function", "script", "program", "implement", "refactor",
		"debug", "algorithm", "compile", "unit test",
		"python", "golang", "javascript", "typescript", "java", "rust", "sql query",
	},
	web: []string{
		"search", "google", "look up", "lookup", "browse", "website", "web",
		"http://", "https://", "www.", "url", "news", "latest", "online", "internet",
	},
	terminal: []string{
		"terminal", "shell", "bash", "command", "command line", "cli", "execute",
		"run the command", "run command", "install", "uninstall", "ls", "pwd",
		"ping", "ps", "df", "du", "uptime", "whoami", "apt", "pip", "npm", "brew",
		"disk usage",
	},
	technical: []string{
		"server", "database", "api", "network", "config", "configuration", "docker",
		"kubernetes", "linux", "windows", "log", "logs", "deploy", "deployment",
		"port", "ip", "dns", "ssl", "tls", "cpu", "memory",
	},
	connectives: []string{
		"then", "after that", "afterwards", "first", "next", "finally", "if",
		"otherwise", "unless", "before", "after", "while", "also", "and then",
	},
	interrogatives: []string{
		"what", "who", "whom", "whose", "when", "where", "why", "how", "which",
		"is", "are", "can", "could", "does", "do", "did", "should", "would", "will",
		"explain", "define", "describe", "tell",
	},
	operations: []string{
		"create", "make", "write", "delete", "remove", "run", "execute", "install",
		"update", "move", "copy", "rename", "build", "deploy", "save", "generate",
		"add", "set", "start", "stop", "restart", "download", "upload",
	},
	errorMarkers: []string{
		"error", "err:", "failed", "failure", "fatal", "exception", "traceback", "panic:",
	},
	errorTerms: []string{
		"error", "errors", "failed", "failure", "fail", "exception", "denied",
		"refused", "not found", "invalid", "timeout", "timed out", "cannot",
		"unable", "unreachable", "forbidden", "unauthorized", "fatal",
	},
	successTerms: []string{
		"success", "successful", "successfully", "succeeded", "completed", "done",
		"created", "saved", "written", "found", "ok", "ready",
	},
	completion: []string{
		"successfully", "completed", "complete", "finished", "done", "task complete",
	},
	progress: []string{
		"in progress", "processing", "loading", "pending", "running", "still",
		"waiting", "queued", "not yet",
	},
	successPhrases: []string{
		"success", "successfully", "succeeded", "completed", "created", "deleted",
		"removed", "saved", "written", "installed", "updated", "renamed", "copied",
		"moved", "exit code 0", "exit status 0",
	},
	thoughtDone: []string{
		"i have", "i now have", "already have", "ready to", "i can now answer",
		"i know the", "i found the", "that answers", "enough information",
	},
	resultLabels: []string{"Result", "Output", "Found"},
}

var indonesian = vocabulary{
	greetings: []string{
		"halo", "hai", "hallo", "helo", "hei", "halo semua", "hai semua",
		"selamat pagi", "selamat siang", "selamat sore", "selamat malam",
		"terima kasih", "terimakasih", "makasih", "trims", "thanks ya", "makasih ya",
		"apa kabar", "halo apa kabar", "sampai jumpa", "dadah", "oke", "sip", "mantap",
	},
	fillers: []string{
		"banyak", "ya", "yah", "sekali", "semua", "juga", "atas", "bantuannya",
		"bantuan", "nya", "kak", "pak", "bu", "mas", "mbak", "bang", "teman",
	},
	pentest: []string{
		"uji penetrasi", "pengujian penetrasi", "kerentanan", "celah keamanan",
		"pindai port", "scan port", "audit keamanan", "eksploitasi", "peretasan",
	},
	file: []string{
		"berkas", "direktori", "baca file", "tulis file", "buat file", "hapus file",
		"simpan ke", "isi file", "ganti nama",
	},
	code: []string{
		"kode", "fungsi", "skrip", "program", "algoritma", "buatkan program",
		"perbaiki kode", "pemrograman",
	},
	web: []string{
		"cari", "carikan", "cari tahu", "telusuri", "berita", "terbaru", "situs",
		"informasi terkini", "di internet",
	},
	terminal: []string{
		"jalankan", "perintah", "eksekusi", "instal", "pasang", "penggunaan disk",
	},
	technical: []string{
		"jaringan", "basis data", "konfigurasi", "peladen", "pangkalan data",
	},
	connectives: []string{
		"lalu", "kemudian", "setelah itu", "setelahnya", "jika", "kalau", "apabila",
		"selanjutnya", "terakhir", "sebelum", "sesudah", "pertama", "dan juga",
	},
	interrogatives: []string{
		"apa", "apakah", "siapa", "kapan", "dimana", "di mana", "mengapa", "kenapa",
		"bagaimana", "berapa", "mana", "jelaskan", "sebutkan",
	},
	operations: []string{
		"buat", "buatkan", "membuat", "hapus", "menghapus", "jalankan", "menjalankan",
		"instal", "pasang", "perbarui", "pindahkan", "salin", "ganti", "simpan",
		"tulis", "eksekusi", "unduh", "unggah",
	},
	errorMarkers: []string{
		"gagal", "kesalahan", "galat",
	},
	errorTerms: []string{
		"gagal", "kesalahan", "galat", "ditolak", "tidak ditemukan", "tidak dapat",
		"tidak bisa", "tidak valid", "waktu habis",
	},
	successTerms: []string{
		"berhasil", "sukses", "selesai", "tersimpan", "dibuat", "ditemukan",
	},
	completion: []string{
		"berhasil", "selesai", "sukses", "tugas selesai",
	},
	progress: []string{
		"sedang", "menunggu", "dalam proses", "memproses", "belum selesai",
	},
	successPhrases: []string{
		"berhasil", "sukses", "selesai", "dibuat", "dihapus", "disimpan",
		"terinstal", "diperbarui",
	},
	thoughtDone: []string{
		"saya sudah", "sudah memiliki", "sudah punya", "siap untuk", "sekarang saya tahu",
		"informasi sudah cukup",
	},
	resultLabels: []string{"Hasil", "Ditemukan"},
}

var vocabularies = map[language.Tag]vocabulary{
	language.English:    english,
	language.Indonesian: indonesian,
}

// mergeVocabularies combines the tables of the given languages. Unknown tags
// are skipped; an empty result falls back to DefaultLanguages.
func mergeVocabularies(tags []language.Tag) vocabulary {
	var merged vocabulary
	found := false
	for _, tag := range tags {
		v, ok := vocabularies[tag]
		if !ok {
			continue
		}
		found = true
		merged.greetings = append(merged.greetings, v.greetings...)
		merged.fillers = append(merged.fillers, v.fillers...)
		merged.pentest = append(merged.pentest, v.pentest...)
		merged.file = append(merged.file, v.file...)
		merged.code = append(merged.code, v.code...)
		merged.web = append(merged.web, v.web...)
		merged.terminal = append(merged.terminal, v.terminal...)
		merged.technical = append(merged.technical, v.technical...)
		merged.connectives = append(merged.connectives, v.connectives...)
		merged.interrogatives = append(merged.interrogatives, v.interrogatives...)
		merged.operations = append(merged.operations, v.operations...)
		merged.errorMarkers = append(merged.errorMarkers, v.errorMarkers...)
		merged.errorTerms = append(merged.errorTerms, v.errorTerms...)
		merged.successTerms = append(merged.successTerms, v.successTerms...)
		merged.completion = append(merged.completion, v.completion...)
		merged.progress = append(merged.progress, v.progress...)
		merged.successPhrases = append(merged.successPhrases, v.successPhrases...)
		merged.thoughtDone = append(merged.thoughtDone, v.thoughtDone...)
		merged.resultLabels = append(merged.resultLabels, v.resultLabels...)
	}
	if !found {
		return mergeVocabularies(DefaultLanguages)
	}
	return merged
}

// fold case-folds text for caseless matching. A Caser is stateful, so one is
// created per call.
func fold(s string) string {
	return cases.Fold().String(s)
}

// tokenize splits folded text into letter/digit runs.
func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})
}

// folded is a task or observation prepared for keyword matching.
type folded struct {
	text   string
	tokens []string
	set    map[string]struct{}
}

func newFolded(s string) folded {
	text := fold(strings.TrimSpace(s))
	tokens := tokenize(text)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return folded{text: text, tokens: tokens, set: set}
}

func isPhrase(term string) bool {
	return strings.IndexFunc(term, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) >= 0
}

// has reports whether a single term occurs in the text.
func (f folded) has(term string) bool {
	if isPhrase(term) {
		return strings.Contains(f.text, term)
	}
	_, ok := f.set[term]
	return ok
}

// hasAny reports whether any term occurs.
func (f folded) hasAny(terms []string) bool {
	for _, t := range terms {
		if f.has(t) {
			return true
		}
	}
	return false
}

// count returns how many times the terms occur. Words count per token
// occurrence; phrases count per substring occurrence.
func (f folded) count(terms []string) int {
	n := 0
	for _, term := range terms {
		if isPhrase(term) {
			n += strings.Count(f.text, term)
			continue
		}
		for _, tok := range f.tokens {
			if tok == term {
				n++
			}
		}
	}
	return n
}

// startsWithAny reports whether the text opens with one of the terms as a
// whole word or phrase.
func (f folded) startsWithAny(terms []string) bool {
	for _, term := range terms {
		if !strings.HasPrefix(f.text, term) {
			continue
		}
		rest := f.text[len(term):]
		if rest == "" || !isWordRune(firstRune(rest)) || !isWordRune(lastRune(term)) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	r := []rune(s)
	if len(r) == 0 {
		return 0
	}
	return r[len(r)-1]
}
