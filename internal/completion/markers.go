package completion

// The heuristic lists below are data tables, kept in one place per category
// to ease curation, per the spec's evaluator-extensibility design note.

// shellWriteMarkers, tested first, classify a shell command as write-like.
var shellWriteMarkers = []string{
	">>", " > ", "\n>", "tee ", "touch ", "mkdir ", "cp ", "mv ",
	"truncate ", "sed -i", "perl -i",
}

// shellReadMarkers classify a shell command as read-like when none of the
// write markers matched.
var shellReadMarkers = []string{
	"cat ", "less ", "more ", "head ", "tail ", "wc ", "stat ", "ls ",
	"find ", "rg ", "grep ", "sed -n", "nl ",
}

// toolResultFailureMarkers: a tool result body is considered successful iff
// its lowercased text contains none of these substrings.
var toolResultFailureMarkers = []string{
	"failed", "error", "not allowed", "denied", "missing", "refusing",
}

// chineseWriteClaimMarkers are matched against the raw (non-folded) response
// text — case folding is a no-op for CJK.
var chineseWriteClaimMarkers = []string{
	"已写入", "已经写入", "写到了",
	"已保存", "已经保存", "保存到", "保存在", "保存于",
	"已存储", "已经存储", "存储到",
	"已创建", "已经创建", "成功创建", "已成功创建", "文件已成功创建",
	"已生成", "已经生成",
	"已更新", "已经更新",
}

// completionVerbs are matched case-insensitively against the response text.
var completionVerbs = []string{
	"i wrote", "written to", "saved to", "saved as",
	"has been saved", "has been written",
	"created at", "created the file", "updated the file",
	"generated the report", "i updated", "i created", "i saved",
}

// fileIndicators: alongside a completionVerb hit, the response must also
// name a plausible file location or extension.
var fileIndicators = []string{
	"/", "\\", ".md", ".txt", ".json", ".yaml", ".yml", ".toml",
	" file ", " path ", "docs/", "src/",
	// language-typical source suffixes
	".go", ".py", ".js", ".ts", ".rs", ".java", ".rb", ".c", ".cpp", ".sh",
}

// completionMarkers veto an in-progress classification whenever present.
var completionMarkers = []string{
	"done", "completed", "finished", "successfully",
	"已完成", "已经完成", "完成了",
	"已写入", "已经写入", "已保存", "已经保存",
	"成功创建", "已生成", "已经生成", "已更新", "已经更新",
}

// progressMarkers indicate the model is narrating in-progress work rather
// than reporting a result.
var progressMarkers = []string{
	"i'm checking", "let me check", "i am checking",
	"i'm reviewing", "let me review", "i need to inspect",
	"working on", "currently implementing",
	"我正在", "让我检查", "我先检查", "让我先查看", "我需要先查看", "正在实施",
}
