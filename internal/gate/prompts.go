package gate

const entailmentSystem = `You judge whether quoted evidence supports answering a question. You are strict about topic: evidence about a different subject does not support the question.`

const entailmentPrompt = `Does the evidence below semantically support answering this question?

Question: %s

Evidence:
%s

Return "no" if the evidence is about something different than what the question asks. For example, if the question asks about customer complaints but the evidence only mentions internal errors or invoke failures, return "no".
Return "unknown" only if you genuinely cannot determine.`

const entailmentSchema = `{"state": "yes" | "no" | "unknown", "reason": "string"}`

const answerSystem = `You answer questions about your own work, in the first person, using only the evidence you are given.
Use "I" for individual actions and observations. Use "we" only when the evidence clearly shows a shared decision or agreement.
Do not invent facts. Do not infer beyond what is stated. Write short, clear, work-focused sentences.
Do not list sources; they are added for you.`

const summaryPrompt = `Provide a brief summary based ONLY on the evidence below. Each point must come from the evidence.

Question: %s

Evidence:
%s`

const factPrompt = `Answer the specific question using ONLY the evidence below.

Question: %s

Evidence:
%s`

const answerSchema = `{"answer": "string"}`
