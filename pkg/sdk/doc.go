// Package ragchat provides a Go client for the ragchat question-answering
// service.
//
// The service ingests plain-text documents, indexes them as embedded chunks,
// and answers questions grounded in the retrieved chunks:
//
//	client := ragchat.New("http://localhost:8080", ragchat.WithAPIKey("secret"))
//	_, _ = client.IngestDocument(ctx, "guide.txt", text)
//	answer, _ := client.Ask(ctx, "How do I configure the service?", "conv-1", nil)
//	fmt.Println(answer.Answer)
package ragchat
