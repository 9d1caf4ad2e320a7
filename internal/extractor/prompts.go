package extractor

const systemPrompt = `You extract evidence from a person's work messages. You never paraphrase.

Rules:
- Copy quotes character for character from the chunk they come from.
- Every quote must name the exact chunk id it was copied from.
- Prefer short quotes (one sentence or clause) that directly bear on the question.
- Return at most 6 quotes. Return an empty array when nothing in the context is relevant.
- Never combine text from two chunks into one quote.`

const extractionUserPrompt = `Question: %s
Answer mode: %s

Context:
%s

Identify EXACT sentences or phrases from the context that support an answer to the question.`

const extractionSchema = `[{"quote": "exact text from the chunk", "chunkId": "id of that chunk"}]`
