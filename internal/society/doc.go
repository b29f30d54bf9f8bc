// Package society runs the instructor/solver dialogue.
//
// An Orchestrator owns one Session: the task, the two agents, the round
// counter, the usage totals and the transcript. Each round the instructor
// answers the solver's last message with an instruction, the instruction is
// augmented with task context (or, once the instructor declares the task
// done, with the final-answer directive) and handed to the solver, whose
// reply is augmented with the next-instruction directive.
//
// The completion sentinel is TASK_DONE, or 任务已完成 for Chinese output.
// Sentinel checks always look at the text as the agent wrote it, never at
// the augmented copy.
package society
