package snowflake

// Config holds Snowflake database configuration
type Config struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
}

// ParseConnectionString extracts components from a key=value connection
// string as handed out by the Snowflake console.
// Format: scheme=https;ACCOUNT=xxx;HOST=yyy;port=443;USER=zzz;PASSWORD=www;DB=aaa.bbb;
func ParseConnectionString(connStr string) Config {
	parts := make(map[string]string)

	var current string
	for _, c := range connStr {
		if c == ';' {
			if idx := indexOfChar(current, '='); idx > 0 {
				parts[current[:idx]] = current[idx+1:]
			}
			current = ""
		} else {
			current += string(c)
		}
	}
	// Handle last part without trailing semicolon
	if current != "" {
		if idx := indexOfChar(current, '='); idx > 0 {
			parts[current[:idx]] = current[idx+1:]
		}
	}

	// DB field may carry database.schema
	db := parts["DB"]
	var database, schema string
	if idx := indexOfChar(db, '.'); idx > 0 {
		database = db[:idx]
		schema = db[idx+1:]
	} else {
		database = db
	}

	return Config{
		Account:   parts["ACCOUNT"],
		User:      parts["USER"],
		Password:  parts["PASSWORD"],
		Database:  database,
		Schema:    schema,
		Warehouse: parts["WAREHOUSE"],
	}
}

func indexOfChar(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			return i
		}
	}
	return -1
}
