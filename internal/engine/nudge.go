package engine

// defaultNudgeMessage is appended to the history as a user turn whenever a
// round evaluates as Continue. It is deliberately written in the same
// language and register the original task engine uses, since it is shown
// directly to the model, not to an end user.
const defaultNudgeMessage = "[Task Engine]\n任务尚未完成。请继续执行必要的工具操作并在有可验证结果后再给最终答复。不要仅汇报进行中状态。"
