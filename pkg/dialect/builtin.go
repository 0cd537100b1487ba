package dialect

import "github.com/leapstack-labs/dbal/pkg/core"

// Built-in dialect names.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite"
	DuckDB   = "duckdb"
)

var doubleQuote = core.IdentifierConfig{Quote: `"`, QuoteEnd: `"`, Escape: `""`}

func init() {
	Register(mysqlDialect())
	Register(postgresDialect())
	Register(sqliteDialect())
	Register(duckdbDialect())
}

func mysqlDialect() *Dialect {
	return &Dialect{
		Name:                  MySQL,
		Identifiers:           core.IdentifierConfig{Quote: "`", QuoteEnd: "`", Escape: "``"},
		Placeholder:           core.PlaceholderQuestion,
		Upsert:                UpsertOnDuplicateKey,
		ExcludedFormat:        "VALUES(%s)",
		OffsetOnlyLimit:       "18446744073709551615",
		TruncateFormat:        "TRUNCATE TABLE %s",
		AutoIncrement:         "AUTO_INCREMENT",
		SupportsTableOptions:  true,
		SupportsAfterColumn:   true,
		SupportsAddForeignKey: true,
		SupportsCheck:         true,
		Modify:                ModifyColumnClause,
		DropForeignKeyFormat:  "ALTER TABLE %s DROP FOREIGN KEY %s",
		DropIndexOnTable:      true,
		IndexTypes:            []string{"fulltext", "spatial"},
		DisableForeignKeys:    "SET FOREIGN_KEY_CHECKS = 0",
		EnableForeignKeys:     "SET FOREIGN_KEY_CHECKS = 1",
		Isolation: map[string]string{
			"READ UNCOMMITTED": "SET SESSION TRANSACTION ISOLATION LEVEL READ UNCOMMITTED",
			"READ COMMITTED":   "SET SESSION TRANSACTION ISOLATION LEVEL READ COMMITTED",
			"REPEATABLE READ":  "SET SESSION TRANSACTION ISOLATION LEVEL REPEATABLE READ",
			"SERIALIZABLE":     "SET SESSION TRANSACTION ISOLATION LEVEL SERIALIZABLE",
		},
		GooseDialect: "mysql",
		Catalog: Catalog{
			TableExists: `SELECT COUNT(*) AS cnt FROM information_schema.TABLES
				WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?`,
			ColumnExists: `SELECT COUNT(*) AS cnt FROM information_schema.COLUMNS
				WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?`,
			IndexExists: `SELECT COUNT(*) AS cnt FROM information_schema.STATISTICS
				WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND INDEX_NAME = ?`,
			ForeignKeyExists: `SELECT COUNT(*) AS cnt FROM information_schema.TABLE_CONSTRAINTS
				WHERE CONSTRAINT_SCHEMA = DATABASE() AND TABLE_NAME = ? AND CONSTRAINT_NAME = ?
				AND CONSTRAINT_TYPE = 'FOREIGN KEY'`,
			Tables: `SELECT TABLE_NAME AS name FROM information_schema.TABLES
				WHERE TABLE_SCHEMA = DATABASE() ORDER BY TABLE_NAME`,
			Columns: `SELECT COLUMN_NAME AS name, COLUMN_TYPE AS type, IS_NULLABLE AS nullable,
				COLUMN_DEFAULT AS default_value, COLUMN_KEY AS key_role
				FROM information_schema.COLUMNS
				WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`,
			Indexes: `SELECT INDEX_NAME AS name, COLUMN_NAME AS column_name, NON_UNIQUE AS non_unique,
				INDEX_TYPE AS index_type FROM information_schema.STATISTICS
				WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? ORDER BY INDEX_NAME, SEQ_IN_INDEX`,
		},
	}
}

func postgresDialect() *Dialect {
	return &Dialect{
		Name:                  Postgres,
		Identifiers:           doubleQuote,
		Placeholder:           core.PlaceholderDollar,
		DefaultSchema:         "public",
		Upsert:                UpsertOnConflict,
		UpsertRequiresTarget:  true,
		ExcludedFormat:        "EXCLUDED.%s",
		TruncateFormat:        "TRUNCATE TABLE %s",
		AutoIncrement:         "GENERATED BY DEFAULT AS IDENTITY",
		SupportsAddForeignKey: true,
		SupportsCheck:         true,
		Modify:                ModifyAlterColumn,
		DropForeignKeyFormat:  "ALTER TABLE %s DROP CONSTRAINT %s",
		DropCascade:           true,
		Isolation: map[string]string{
			"READ UNCOMMITTED": "SET SESSION CHARACTERISTICS AS TRANSACTION ISOLATION LEVEL READ UNCOMMITTED",
			"READ COMMITTED":   "SET SESSION CHARACTERISTICS AS TRANSACTION ISOLATION LEVEL READ COMMITTED",
			"REPEATABLE READ":  "SET SESSION CHARACTERISTICS AS TRANSACTION ISOLATION LEVEL REPEATABLE READ",
			"SERIALIZABLE":     "SET SESSION CHARACTERISTICS AS TRANSACTION ISOLATION LEVEL SERIALIZABLE",
		},
		GooseDialect: "postgres",
		Catalog: Catalog{
			TableExists: `SELECT COUNT(*) AS cnt FROM information_schema.tables
				WHERE table_schema = current_schema() AND table_name = $1`,
			ColumnExists: `SELECT COUNT(*) AS cnt FROM information_schema.columns
				WHERE table_schema = current_schema() AND table_name = $1 AND column_name = $2`,
			IndexExists: `SELECT COUNT(*) AS cnt FROM pg_indexes
				WHERE schemaname = current_schema() AND tablename = $1 AND indexname = $2`,
			ForeignKeyExists: `SELECT COUNT(*) AS cnt FROM information_schema.table_constraints
				WHERE constraint_schema = current_schema() AND table_name = $1 AND constraint_name = $2
				AND constraint_type = 'FOREIGN KEY'`,
			Tables: `SELECT table_name AS name FROM information_schema.tables
				WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`,
			Columns: `SELECT column_name AS name, data_type AS type, is_nullable AS nullable,
				column_default AS default_value, '' AS key_role FROM information_schema.columns
				WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`,
			Indexes: `SELECT i.relname AS name, a.attname AS column_name,
				CASE WHEN ix.indisunique THEN 0 ELSE 1 END AS non_unique, am.amname AS index_type
				FROM pg_class t
				JOIN pg_index ix ON t.oid = ix.indrelid
				JOIN pg_class i ON i.oid = ix.indexrelid
				JOIN pg_am am ON i.relam = am.oid
				JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = ANY(ix.indkey)
				JOIN pg_namespace n ON n.oid = t.relnamespace
				WHERE n.nspname = current_schema() AND t.relname = $1
				ORDER BY i.relname, a.attnum`,
		},
	}
}

func sqliteDialect() *Dialect {
	return &Dialect{
		Name:               SQLite,
		Identifiers:        doubleQuote,
		Placeholder:        core.PlaceholderQuestion,
		DefaultSchema:      "main",
		Upsert:             UpsertOnConflict,
		ExcludedFormat:     "excluded.%s",
		OffsetOnlyLimit:    "-1",
		TruncateFormat:     "DELETE FROM %s",
		AutoIncrement:      "AUTOINCREMENT",
		Modify:             ModifyUnsupported,
		DisableForeignKeys: "PRAGMA foreign_keys = OFF",
		EnableForeignKeys:  "PRAGMA foreign_keys = ON",
		Isolation: map[string]string{
			"READ UNCOMMITTED": "PRAGMA read_uncommitted = 1",
			"SERIALIZABLE":     "PRAGMA read_uncommitted = 0",
		},
		GooseDialect: "sqlite3",
		Catalog: Catalog{
			TableExists:  `SELECT COUNT(*) AS cnt FROM sqlite_master WHERE type = 'table' AND name = ?`,
			ColumnExists: `SELECT COUNT(*) AS cnt FROM pragma_table_info(?) WHERE name = ?`,
			IndexExists:  `SELECT COUNT(*) AS cnt FROM sqlite_master WHERE type = 'index' AND tbl_name = ? AND name = ?`,
			ForeignKeyExists: `SELECT COUNT(*) AS cnt FROM sqlite_master
				WHERE type = 'table' AND name = ? AND instr(sql, 'CONSTRAINT "' || ? || '"') > 0`,
			Tables: `SELECT name FROM sqlite_master
				WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
			Columns: `SELECT name, type, CASE WHEN "notnull" = 1 THEN 'NO' ELSE 'YES' END AS nullable,
				dflt_value AS default_value, CASE WHEN pk > 0 THEN 'PRI' ELSE '' END AS key_role
				FROM pragma_table_info(?) ORDER BY cid`,
			Indexes: `SELECT il.name AS name, ii.name AS column_name,
				CASE WHEN il."unique" = 1 THEN 0 ELSE 1 END AS non_unique, il.origin AS index_type
				FROM pragma_index_list(?) AS il, pragma_index_info(il.name) AS ii
				ORDER BY il.name, ii.seqno`,
		},
	}
}

func duckdbDialect() *Dialect {
	return &Dialect{
		Name:                 DuckDB,
		Identifiers:          doubleQuote,
		Placeholder:          core.PlaceholderQuestion,
		DefaultSchema:        "main",
		Upsert:               UpsertOnConflict,
		UpsertRequiresTarget: true,
		ExcludedFormat:       "EXCLUDED.%s",
		TruncateFormat:       "TRUNCATE TABLE %s",
		Modify:               ModifyAlterColumn,
		Isolation:            map[string]string{},
		GooseDialect:         "",
		Catalog: Catalog{
			TableExists: `SELECT COUNT(*) AS cnt FROM information_schema.tables
				WHERE table_schema = current_schema() AND table_name = ?`,
			ColumnExists: `SELECT COUNT(*) AS cnt FROM information_schema.columns
				WHERE table_schema = current_schema() AND table_name = ? AND column_name = ?`,
			IndexExists:      `SELECT COUNT(*) AS cnt FROM duckdb_indexes() WHERE table_name = ? AND index_name = ?`,
			ForeignKeyExists: `SELECT COUNT(*) AS cnt FROM duckdb_constraints() WHERE table_name = ? AND constraint_name = ? AND constraint_type = 'FOREIGN KEY'`,
			Tables: `SELECT table_name AS name FROM information_schema.tables
				WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name`,
			Columns: `SELECT column_name AS name, data_type AS type, is_nullable AS nullable,
				column_default AS default_value, '' AS key_role FROM information_schema.columns
				WHERE table_schema = current_schema() AND table_name = ? ORDER BY ordinal_position`,
			Indexes: `SELECT index_name AS name, expressions AS column_name,
				CASE WHEN is_unique THEN 0 ELSE 1 END AS non_unique, 'ART' AS index_type
				FROM duckdb_indexes() WHERE table_name = ?`,
		},
	}
}
